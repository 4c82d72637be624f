package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const keyPrefix = "meals"

var (
	// ErrEmptyPhoto indicates an attempt to archive a photo without bytes.
	ErrEmptyPhoto = errors.New("photos: empty photo")
	// ErrInvalidOwner indicates a missing user id for the archive key.
	ErrInvalidOwner = errors.New("photos: owner required")
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config describes the bucket meal photos are archived to.
type Config struct {
	Bucket        string
	Region        string
	PublicBaseURL string
}

// S3Archive stores analyzed meal photos in an S3 bucket.
type S3Archive struct {
	client        objectPutter
	bucket        string
	publicBaseURL string
	newKeyID      func() (uuid.UUID, error)
}

// NewS3Archive loads the default AWS credential chain for the region and
// returns an archive for the bucket.
func NewS3Archive(ctx context.Context, cfg Config) (*S3Archive, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("photos: bucket required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errors.New("photos: region required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("photos: load aws config: %w", err)
	}
	return newS3Archive(s3.NewFromConfig(awsCfg), cfg), nil
}

func newS3Archive(client objectPutter, cfg Config) *S3Archive {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Archive{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: baseURL,
		newKeyID:      uuid.NewV7,
	}
}

// Store uploads the photo under meals/<userID>/<uuid><ext> and returns its public URL.
func (a *S3Archive) Store(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	owner := strings.TrimSpace(userID)
	if owner == "" {
		return "", ErrInvalidOwner
	}
	if len(data) == 0 {
		return "", ErrEmptyPhoto
	}
	contentType = normalizeContentType(contentType)

	keyID, err := a.newKeyID()
	if err != nil {
		return "", fmt.Errorf("photos: generate key: %w", err)
	}
	key := fmt.Sprintf("%s/%s/%s%s", keyPrefix, owner, keyID.String(), extensionFor(contentType))

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("photos: upload %s: %w", key, err)
	}
	return a.publicBaseURL + "/" + key, nil
}

func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		return "image/jpeg"
	}
	return mediaType
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	if _, subtype, ok := strings.Cut(contentType, "/"); ok && subtype != "" {
		return "." + subtype
	}
	return ""
}
