package accounts

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// rawTokenSize is the entropy of a raw token in bytes.
const rawTokenSize = 32

// ContextKind discriminates the purposes a token can be issued for.
type ContextKind int

const (
	ContextSession ContextKind = iota
	ContextConfirm
	ContextResetPassword
	ContextChangeEmail
)

// Context is the purpose a token was issued for. Change-email contexts carry
// the address the account had at issuance time, so a token minted before a
// concurrent email change can no longer match.
type Context struct {
	Kind  ContextKind
	email string
}

func SessionContext() Context       { return Context{Kind: ContextSession} }
func ConfirmContext() Context       { return Context{Kind: ContextConfirm} }
func ResetPasswordContext() Context { return Context{Kind: ContextResetPassword} }

// ChangeEmailContext scopes a token to changing away from currentEmail.
func ChangeEmailContext(currentEmail string) Context {
	return Context{Kind: ContextChangeEmail, email: currentEmail}
}

// Email returns the address embedded in a change-email context.
func (c Context) Email() string { return c.email }

// String renders the storable form of the context.
func (c Context) String() string {
	switch c.Kind {
	case ContextSession:
		return "session"
	case ContextConfirm:
		return "confirm"
	case ContextResetPassword:
		return "reset_password"
	case ContextChangeEmail:
		return "change:" + c.email
	}
	return fmt.Sprintf("unknown(%d)", int(c.Kind))
}

// ParseContext is the inverse of String, used at the store boundary.
func ParseContext(s string) (Context, error) {
	switch {
	case s == "session":
		return SessionContext(), nil
	case s == "confirm":
		return ConfirmContext(), nil
	case s == "reset_password":
		return ResetPasswordContext(), nil
	case strings.HasPrefix(s, "change:"):
		return ChangeEmailContext(strings.TrimPrefix(s, "change:")), nil
	}
	return Context{}, fmt.Errorf("unknown token context %q", s)
}

// Token is a capability record binding a random secret to a purpose. Only
// the SHA-256 digest of the secret is ever persisted; the raw form is handed
// to the caller once at issuance.
type Token struct {
	Hash    []byte
	Context Context
	UserID  string

	// SentTo snapshots the email an instruction was delivered to, so a
	// mid-flight address change is detectable. Empty for sessions.
	SentTo string

	// TrackingID identifies one login instance among a user's sessions
	// without revealing the secret. Set for session tokens only.
	TrackingID string

	InsertedAt time.Time
}

// GenerateToken mints a raw token and its storable record. The raw form is
// URL-safe; session tokens additionally get a fresh tracking id.
func GenerateToken(userID string, c Context, sentTo string) (string, *Token, error) {
	b := make([]byte, rawTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("generating token: %w", err)
	}
	sum := sha256.Sum256(b)

	t := &Token{
		Hash:       sum[:],
		Context:    c,
		UserID:     userID,
		SentTo:     sentTo,
		InsertedAt: time.Now().UTC(),
	}
	if c.Kind == ContextSession {
		t.TrackingID = uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b), t, nil
}

// HashToken derives the stored form of a raw token. The mapping is
// deterministic and one-way. Malformed input yields the generic token error.
func HashToken(raw string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(b) != rawTokenSize {
		return nil, ErrTokenNotFound
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

// sessionClaims is the payload of the signed session envelope.
type sessionClaims struct {
	jwt.RegisteredClaims
	Token      string `json:"tok"`
	TrackingID string `json:"sid"`
}

const sessionIssuer = "accounts"

// SessionSigner wraps raw session tokens in a signed envelope so a session
// can be cheaply rejected without a store round trip. Signature verification
// is never a sufficient trust decision on its own: the store existence and
// age check stays authoritative.
type SessionSigner struct {
	secret []byte
}

func NewSessionSigner(secret []byte) *SessionSigner {
	return &SessionSigner{secret: secret}
}

// Sign produces the transportable form of a session token.
func (s *SessionSigner) Sign(raw, trackingID string) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   sessionIssuer,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Token:      raw,
		TrackingID: trackingID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the envelope signature and returns the embedded raw token
// and tracking id. Any defect maps to the generic token error.
func (s *SessionSigner) Verify(signed string) (raw, trackingID string, err error) {
	var claims sessionClaims
	_, err = jwt.ParseWithClaims(signed, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionIssuer))
	if err != nil || claims.Token == "" {
		return "", "", ErrTokenNotFound
	}
	return claims.Token, claims.TrackingID, nil
}
