package accounts

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	decoyOnce sync.Once
	decoyHash []byte
)

// decoy returns a well-formed bcrypt hash used when no stored hash exists.
// Comparing against it keeps the no-such-user and no-password paths on the
// same wall-clock cost as a failed password check.
func decoy() []byte {
	decoyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("decoy comparison subject"), bcrypt.DefaultCost)
		if err != nil {
			panic("accounts: cannot build decoy hash: " + err.Error())
		}
		decoyHash = h
	})
	return decoyHash
}

// VerifyCredentials looks up the user identified by email or phone and
// checks the plaintext password against the stored hash. A missing user or
// an account without a password still pays for a full hash comparison; every
// failure is the same generic ErrUnauthorized.
func VerifyCredentials(ctx context.Context, users UserStore, identifier, password string) (*User, error) {
	user, err := users.UserByIdentifier(ctx, normalizeIdentifier(identifier))
	if err != nil {
		return nil, wrapErr("looking up user", err)
	}
	if user == nil || user.PasswordHash == "" {
		bcrypt.CompareHashAndPassword(decoy(), []byte(password))
		return nil, ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// ValidPassword checks a plaintext password against a user's stored hash,
// paying the decoy cost when the user has none.
func ValidPassword(u *User, password string) bool {
	if u == nil || u.PasswordHash == "" {
		bcrypt.CompareHashAndPassword(decoy(), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
