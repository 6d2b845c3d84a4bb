// Package grpc authenticates gRPC requests with accounts session tokens
// carried in metadata, and exposes the verified user to handlers through the
// request context.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/arjenw/accounts"
)

// DefaultMetadataKeySessionToken is the default gRPC metadata key carrying
// the signed session token.
const DefaultMetadataKeySessionToken = "x-session-token"

type userContextKey struct{}

// Config holds the metadata key configuration for session auth.
type Config struct {
	// MetadataKeySessionToken is the gRPC metadata key for the signed
	// session token. Defaults to "x-session-token".
	MetadataKeySessionToken string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKeySessionToken: DefaultMetadataKeySessionToken}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeySessionToken == "" {
		c.MetadataKeySessionToken = DefaultMetadataKeySessionToken
	}
}

// UserFromContext returns the user the interceptor authenticated, or nil.
func UserFromContext(ctx context.Context) *accounts.User {
	u, _ := ctx.Value(userContextKey{}).(*accounts.User)
	return u
}

// IsAuthenticated reports whether the context carries an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return UserFromContext(ctx) != nil
}

// ContextWithUser attaches a user to the context. Exposed for handler tests.
func ContextWithUser(ctx context.Context, u *accounts.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// SessionTokenToOutgoingContext adds the signed session token to outgoing
// gRPC metadata.
func SessionTokenToOutgoingContext(ctx context.Context, signed string) context.Context {
	return SessionTokenToOutgoingContextWithKey(ctx, signed, DefaultMetadataKeySessionToken)
}

// SessionTokenToOutgoingContextWithKey adds the token with a custom key.
func SessionTokenToOutgoingContextWithKey(ctx context.Context, signed, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, signed)
}

// sessionTokenFromContext pulls the signed token out of incoming metadata.
func sessionTokenFromContext(ctx context.Context, config *Config) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeySessionToken); len(values) > 0 {
		return values[0]
	}
	return ""
}
