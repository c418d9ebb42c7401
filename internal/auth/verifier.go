package auth

import (
	"errors"

	"github.com/2beens/bulletinboard/pkg"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrServerMisconfigured = errors.New("server configuration error")
)

// AdminIdentity is the single admin account, configured once at startup
type AdminIdentity struct {
	Email        string
	PasswordHash string
}

func (a *AdminIdentity) configured() bool {
	return a != nil && a.Email != "" && a.PasswordHash != ""
}

type Verifier struct {
	admin *AdminIdentity
}

func NewVerifier(admin *AdminIdentity) *Verifier {
	return &Verifier{
		admin: admin,
	}
}

// Verify checks the credentials against the configured admin.
// Missing configuration is reported as ErrServerMisconfigured before any comparison.
func (v *Verifier) Verify(email, password string) error {
	if !v.admin.configured() {
		return ErrServerMisconfigured
	}

	// plain string compare for the email; only the password check is bcrypt-bound
	if email != v.admin.Email {
		return ErrInvalidCredentials
	}

	if !pkg.CheckPasswordHash(password, v.admin.PasswordHash) {
		return ErrInvalidCredentials
	}

	return nil
}
