package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

const maxSubjectLength = 190

var (
	// ErrInvalidIdentity indicates the sign-in request did not carry a usable subject.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrUnknownUser indicates that no identity maps onto the user id.
	ErrUnknownUser = errors.New("users: unknown user")
)

// IDProvider mints canonical user ids.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// Service manages canonical user identifiers and provider-specific identities.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
	cache      sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: cfg.IDProvider,
		cache:      sync.Map{},
	}, nil
}

// SignInAnonymously returns the identity for an installation. The same
// installation id always resolves to the same user id. An empty installation id
// mints a brand new user whose id doubles as the subject.
func (s *Service) SignInAnonymously(ctx context.Context, installationID string) (Identity, error) {
	subject := normalize(installationID)
	if len(subject) > maxSubjectLength {
		return Identity{}, ErrInvalidIdentity
	}
	if subject == "" {
		userID, err := s.idProvider.NewID()
		if err != nil {
			return Identity{}, err
		}
		identity := Identity{
			Provider:   ProviderAnonymous,
			Subject:    userID,
			UserID:     userID,
			LastSeenAt: s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&identity).Error; err != nil {
			return Identity{}, err
		}
		s.cache.Store(cacheKey(ProviderAnonymous, userID), identity.UserID)
		return identity, nil
	}
	return s.resolve(ctx, ProviderAnonymous, subject)
}

// Lookup returns the most recently seen identity for a canonical user id.
func (s *Service) Lookup(ctx context.Context, userID string) (Identity, error) {
	normalized := normalize(userID)
	if normalized == "" {
		return Identity{}, ErrUnknownUser
	}
	var identity Identity
	err := s.db.WithContext(ctx).
		Where("user_id = ?", normalized).
		Order("last_seen_at DESC").
		Take(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrUnknownUser
	}
	if err != nil {
		return Identity{}, err
	}
	return identity, nil
}

func (s *Service) resolve(ctx context.Context, provider, subject string) (Identity, error) {
	key := cacheKey(provider, subject)
	if cachedIdentifier, ok := s.cache.Load(key); ok {
		if canonicalIdentifier, ok := cachedIdentifier.(string); ok {
			s.touch(ctx, provider, subject)
			return Identity{Provider: provider, Subject: subject, UserID: canonicalIdentifier, LastSeenAt: s.now()}, nil
		}
	}

	var identity Identity
	err := s.db.WithContext(ctx).
		Where("provider = ? AND subject = ?", provider, subject).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		userID, idErr := s.idProvider.NewID()
		if idErr != nil {
			return Identity{}, idErr
		}
		identity = Identity{
			Provider:   provider,
			Subject:    subject,
			UserID:     userID,
			LastSeenAt: s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&identity).Error; err != nil {
			return Identity{}, err
		}
	} else if err != nil {
		return Identity{}, err
	} else {
		identity.LastSeenAt = s.now()
		s.touch(ctx, provider, subject)
	}

	s.cache.Store(key, identity.UserID)
	return identity, nil
}

func (s *Service) touch(ctx context.Context, provider, subject string) {
	_ = s.db.WithContext(ctx).
		Model(&Identity{}).
		Where("provider = ? AND subject = ?", provider, subject).
		Update("last_seen_at", s.now()).
		Error
}

func cacheKey(provider, subject string) string {
	return provider + ":" + subject
}
