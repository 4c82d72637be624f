package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessScope is the only scope PlatePal access tokens carry.
const AccessScope = "entries"

var (
	// ErrInvalidToken wraps every validation failure. Parser errors such as
	// jwt.ErrTokenExpired stay reachable through errors.Is.
	ErrInvalidToken = errors.New("auth: invalid access token")

	errMissingSigningSecret = errors.New("auth: signing secret must be provided")
	errMissingIssuer        = errors.New("auth: issuer must be provided")
	errMissingAudience      = errors.New("auth: audience must be provided")
	errNonPositiveTTL       = errors.New("auth: token ttl must be positive")
	errMissingSubject       = errors.New("auth: subject must be provided")
	errMissingTokenID       = errors.New("auth: token id must be provided")
	errMissingIssuedAt      = errors.New("auth: issued-at must be provided")
	errUnexpectedScope      = errors.New("auth: unexpected token scope")
)

// TokenIssuerConfig configures the access token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// accessClaims are the claims of a PlatePal access token.
type accessClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and checks the HS256 bearer tokens handed out at sign-in.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    func() time.Time
	parser   *jwt.Parser
}

// NewTokenIssuer validates the configuration and constructs a TokenIssuer.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	switch {
	case len(cfg.SigningSecret) == 0:
		return nil, errMissingSigningSecret
	case strings.TrimSpace(cfg.Issuer) == "":
		return nil, errMissingIssuer
	case strings.TrimSpace(cfg.Audience) == "":
		return nil, errMissingAudience
	case cfg.TokenTTL <= 0:
		return nil, errNonPositiveTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	audience := strings.TrimSpace(cfg.Audience)
	return &TokenIssuer{
		secret:   append([]byte(nil), cfg.SigningSecret...),
		issuer:   issuer,
		audience: audience,
		ttl:      cfg.TokenTTL,
		clock:    clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(clock),
		),
	}, nil
}

// IssueToken signs an access token for the user and returns it with its
// lifetime in seconds.
func (i *TokenIssuer) IssueToken(_ context.Context, subject string) (string, int64, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", 0, errMissingSubject
	}
	tokenID, err := uuid.NewV7()
	if err != nil {
		return "", 0, fmt.Errorf("auth: token id: %w", err)
	}

	issuedAt := i.clock().UTC().Truncate(time.Second)
	claims := accessClaims{
		Scope: AccessScope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Subject:   subject,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", 0, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, int64(i.ttl / time.Second), nil
}

// ValidateToken checks the signature and requires every claim IssueToken sets:
// sub, iss, aud, iat, exp, jti and scope. It returns the user id.
func (i *TokenIssuer) ValidateToken(tokenString string) (string, error) {
	var claims accessClaims
	if _, err := i.parser.ParseWithClaims(tokenString, &claims, i.signingKey); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Scope != AccessScope {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, errUnexpectedScope)
	}
	switch {
	case strings.TrimSpace(claims.Subject) == "":
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, errMissingSubject)
	case strings.TrimSpace(claims.ID) == "":
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, errMissingTokenID)
	case claims.IssuedAt == nil:
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, errMissingIssuedAt)
	}
	return claims.Subject, nil
}

func (i *TokenIssuer) signingKey(*jwt.Token) (interface{}, error) {
	return i.secret, nil
}
