package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionService issues and validates signed, time limited session tokens.
// Tokens are never stored server side, so they cannot be revoked before expiry.
type SessionService struct {
	secret []byte
	ttl    time.Duration
	// injectable clock, for tests
	NowFunc func() time.Time
}

func NewSessionService(secret string, ttl time.Duration) *SessionService {
	return &SessionService{
		secret:  []byte(secret),
		ttl:     ttl,
		NowFunc: time.Now,
	}
}

func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Configured reports whether a signing secret is set
func (s *SessionService) Configured() bool {
	return len(s.secret) > 0
}

func (s *SessionService) Issue(identity string, now time.Time) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrServerMisconfigured
	}

	expiresAt := now.Add(s.ttl)
	claims := SessionClaims{
		Email: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}

	return token, expiresAt, nil
}

// Validate returns the token identity. Bad signature, malformed token and
// expiry all collapse into ErrInvalidToken.
func (s *SessionService) Validate(token string) (string, error) {
	if len(s.secret) == 0 || token == "" {
		return "", ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.NowFunc),
	)

	claims := &SessionClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims.Subject, nil
}
