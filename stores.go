package accounts

import (
	"context"
	"time"
)

// UserStore is the user half of the durable store. Lookups return (nil, nil)
// when no row matches; errors are reserved for store failures.
type UserStore interface {
	UserByID(ctx context.Context, id string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByPhone(ctx context.Context, phone string) (*User, error)

	// UserByIdentifier matches either the email or the phone column.
	UserByIdentifier(ctx context.Context, identifier string) (*User, error)

	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
}

// TokenStore is the token half of the durable store. All lookups are by the
// hashed form; the raw secret never reaches the store.
type TokenStore interface {
	InsertToken(ctx context.Context, t *Token) error

	// TokenByHash finds a live token: hash and context must match exactly
	// and the record must be younger than maxAge. Anything else is
	// (nil, nil).
	TokenByHash(ctx context.Context, hash []byte, c Context, maxAge time.Duration) (*Token, error)

	// SessionByTrackingID finds one of a user's session tokens by its
	// stable tracking id.
	SessionByTrackingID(ctx context.Context, userID, trackingID string) (*Token, error)

	DeleteToken(ctx context.Context, hash []byte, c Context) error

	// DeleteUserTokens removes a user's tokens in the given contexts, or
	// in every context when none are given.
	DeleteUserTokens(ctx context.Context, userID string, contexts ...Context) error

	// DeleteSessionsExcept removes all of a user's session tokens except
	// the one with the given hash.
	DeleteSessionsExcept(ctx context.Context, userID string, keep []byte) error
}

// Store is the complete collaborator contract. Atomically runs fn inside one
// store transaction: every operation issued through tx commits together or
// not at all. The flows that pair a credential or trust mutation with token
// invalidation rely on this to never be observable half-done, and on the
// store's isolation to serialize concurrent consumption of the same token.
type Store interface {
	UserStore
	TokenStore

	Atomically(ctx context.Context, fn func(tx Store) error) error
}
