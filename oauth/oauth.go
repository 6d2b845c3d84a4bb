// Package oauth is the authorization-code bridge consumed by the accounts
// service. Providers exchange a callback code for a normalized external
// identity; the loosely-typed payloads the providers return are mapped into
// Identity at this boundary so nothing upstream depends on provider field
// naming.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// Identity is the minimum a provider must assert about the external account.
type Identity struct {
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	Picture       string
}

// Provider is one named OAuth2 authorization-code provider.
type Provider interface {
	Name() string

	// AuthCodeURL builds the redirect that starts the flow, carrying the
	// caller's state value.
	AuthCodeURL(state string) string

	// Exchange swaps an authorization code for the external identity and
	// the provider's access token.
	Exchange(ctx context.Context, code string) (*Identity, string, error)
}

// Registry holds providers by name.
type Registry map[string]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

func (r Registry) Get(name string) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}

// ErrStateMismatch rejects a callback whose state echo does not match what
// was issued at redirect time.
var ErrStateMismatch = errors.New("oauth state mismatch")

// GenerateState mints the CSRF state value the caller must hold in its
// session across the redirect.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Complete validates a provider callback and performs the code exchange.
// requestParams carries the query parameters the provider redirected back
// with; sessionParams carries what the caller stashed before the redirect,
// including the issued "state".
func Complete(ctx context.Context, p Provider, requestParams, sessionParams map[string]string) (*Identity, string, error) {
	if msg := requestParams["error"]; msg != "" {
		if desc := requestParams["error_description"]; desc != "" {
			msg = msg + ": " + desc
		}
		return nil, "", fmt.Errorf("provider returned error: %s", msg)
	}

	state := requestParams["state"]
	if state == "" || state != sessionParams["state"] {
		return nil, "", ErrStateMismatch
	}

	code := requestParams["code"]
	if code == "" {
		return nil, "", errors.New("missing authorization code")
	}

	return p.Exchange(ctx, code)
}
