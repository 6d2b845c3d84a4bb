package accounts

import (
	"crypto/rand"
	"io"
	"log/slog"
	"time"
)

// Default validity windows per token purpose. Sessions slide: the window is
// measured from issuance and re-checked on every verification rather than
// extended by writes.
const (
	DefaultSessionValidity       = 60 * 24 * time.Hour
	DefaultConfirmValidity       = 24 * time.Hour
	DefaultChangeEmailValidity   = 24 * time.Hour
	DefaultResetPasswordValidity = 10 * time.Minute
)

// Config tunes the service. The zero value is usable: EnsureDefaults fills
// in the stated defaults.
type Config struct {
	SessionValidity       time.Duration
	ConfirmValidity       time.Duration
	ChangeEmailValidity   time.Duration
	ResetPasswordValidity time.Duration

	// SessionSecret keys the signed session envelope. When empty an
	// ephemeral secret is generated, which invalidates outstanding
	// sessions on restart.
	SessionSecret []byte

	Logger *slog.Logger
}

// EnsureDefaults fills unset fields with reasonable defaults.
func (c *Config) EnsureDefaults() {
	if c.SessionValidity == 0 {
		c.SessionValidity = DefaultSessionValidity
	}
	if c.ConfirmValidity == 0 {
		c.ConfirmValidity = DefaultConfirmValidity
	}
	if c.ChangeEmailValidity == 0 {
		c.ChangeEmailValidity = DefaultChangeEmailValidity
	}
	if c.ResetPasswordValidity == 0 {
		c.ResetPasswordValidity = DefaultResetPasswordValidity
	}
	if len(c.SessionSecret) == 0 {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic("accounts: cannot generate session secret: " + err.Error())
		}
		c.SessionSecret = secret
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// validity returns the window configured for a token context.
func (c *Config) validity(tc Context) time.Duration {
	switch tc.Kind {
	case ContextSession:
		return c.SessionValidity
	case ContextConfirm:
		return c.ConfirmValidity
	case ContextResetPassword:
		return c.ResetPasswordValidity
	case ContextChangeEmail:
		return c.ChangeEmailValidity
	}
	return 0
}
