package auth

import (
	"context"
	"errors"
)

var _ Checker = (*SessionChecker)(nil)
var _ Checker = (*LoginTestChecker)(nil)

type Checker interface {
	IsLogged(ctx context.Context, token string) (bool, error)
}

// SessionChecker reports a token as logged in when its signature and expiry check out
type SessionChecker struct {
	sessions *SessionService
}

func NewSessionChecker(sessions *SessionService) *SessionChecker {
	return &SessionChecker{
		sessions: sessions,
	}
}

func (c *SessionChecker) IsLogged(_ context.Context, token string) (bool, error) {
	if _, err := c.sessions.Validate(token); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
