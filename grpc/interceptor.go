package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/arjenw/accounts"
)

// SessionVerifier authenticates a signed session token. *accounts.Service
// satisfies it.
type SessionVerifier interface {
	UserBySessionToken(ctx context.Context, signed string) (*accounts.User, error)
}

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but UserFromContext returns nil.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig()
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		RequireAuth:   false,
		PublicMethods: make(map[string]bool),
	}
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that resolves the
// session token from metadata against the verifier and attaches the user to
// the handler context.
func UnaryAuthInterceptor(verifier SessionVerifier, config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = ensureConfig(config)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		user := authenticate(ctx, verifier, config)
		if config.RequireAuth && !config.PublicMethods[info.FullMethod] && user == nil {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		if user != nil {
			ctx = ContextWithUser(ctx, user)
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns the stream counterpart of
// UnaryAuthInterceptor.
func StreamAuthInterceptor(verifier SessionVerifier, config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = ensureConfig(config)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		user := authenticate(ctx, verifier, config)
		if config.RequireAuth && !config.PublicMethods[info.FullMethod] && user == nil {
			return status.Error(codes.Unauthenticated, "authentication required")
		}
		if user != nil {
			ss = &userServerStream{ServerStream: ss, ctx: ContextWithUser(ctx, user)}
		}
		return handler(srv, ss)
	}
}

func ensureConfig(config *InterceptorConfig) *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig()
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	if config.PublicMethods == nil {
		config.PublicMethods = make(map[string]bool)
	}
	return config
}

func authenticate(ctx context.Context, verifier SessionVerifier, config *InterceptorConfig) *accounts.User {
	signed := sessionTokenFromContext(ctx, config.Config)
	if signed == "" {
		return nil
	}
	user, err := verifier.UserBySessionToken(ctx, signed)
	if err != nil {
		return nil
	}
	return user
}

// userServerStream overrides the stream context with the authenticated user.
type userServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *userServerStream) Context() context.Context { return s.ctx }
