package accounts

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/arjenw/accounts/oauth"
)

// URLBuilder renders the link a raw token is delivered in. The builder is
// supplied by the caller because link shapes belong to the outer
// application, not this core.
type URLBuilder func(rawToken string) string

// Service orchestrates the authentication flows over the store, the email
// sink and the OAuth bridge. Every flow is a single logical transaction:
// credential and trust-boundary mutations commit together with the token
// invalidation they imply, or not at all.
type Service struct {
	store     Store
	email     EmailSender
	providers oauth.Registry
	signer    *SessionSigner
	cfg       Config
	logger    *slog.Logger
}

func NewService(store Store, email EmailSender, providers oauth.Registry, cfg Config) *Service {
	cfg.EnsureDefaults()
	return &Service{
		store:     store,
		email:     email,
		providers: providers,
		signer:    NewSessionSigner(cfg.SessionSecret),
		cfg:       cfg,
		logger:    cfg.Logger,
	}
}

// =============================================================================
// Lookups
// =============================================================================

// UserByID fetches a user, (nil, nil) when absent.
func (s *Service) UserByID(ctx context.Context, id string) (*User, error) {
	user, err := s.store.UserByID(ctx, id)
	if err != nil {
		return nil, wrapErr("looking up user", err)
	}
	return user, nil
}

// UserByEmail fetches a user by email, (nil, nil) when absent.
func (s *Service) UserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, wrapErr("looking up user", err)
	}
	return user, nil
}

// =============================================================================
// Registration and password login
// =============================================================================

// RegisterUser creates an account from identifier + password attributes.
// Field-level failures, including a taken identifier, come back as
// *ValidationError.
func (s *Service) RegisterUser(ctx context.Context, p UserParams) (*User, error) {
	user, err := NewUser(p)
	if err != nil {
		return nil, err
	}

	err = s.store.Atomically(ctx, func(tx Store) error {
		existing, err := tx.UserByIdentifier(ctx, user.Identifier())
		if err != nil {
			return err
		}
		if existing != nil {
			return identifierTakenError(user)
		}
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		// A concurrent registration can slip past the lookup and lose the
		// race at the store's unique index. Re-check so that outcome reads
		// as the same field error, not a store failure.
		if !isDomainErr(err) {
			if existing, lookupErr := s.store.UserByIdentifier(ctx, user.Identifier()); lookupErr == nil && existing != nil {
				return nil, identifierTakenError(user)
			}
		}
		return nil, wrapErr("creating user", err)
	}
	s.logger.Info("registered user", "user_id", user.ID)
	return user, nil
}

func identifierTakenError(u *User) *ValidationError {
	verr := &ValidationError{}
	if u.Email != "" {
		verr.Add("email", "has already been taken")
	} else {
		verr.Add("phone", "has already been taken")
	}
	return verr
}

// requireEmail rejects email delivery flows for phone-only accounts.
func requireEmail(u *User) error {
	if u.Email == "" {
		verr := &ValidationError{}
		verr.Add("email", "account has no email address")
		return verr
	}
	return nil
}

// AuthenticateByPassword runs the credential check. Every failure is the
// same generic ErrUnauthorized.
func (s *Service) AuthenticateByPassword(ctx context.Context, identifier, password string) (*User, error) {
	return VerifyCredentials(ctx, s.store, identifier, password)
}

// =============================================================================
// OAuth login / registration
// =============================================================================

// AuthenticateWithProvider completes a provider callback and resolves it to
// a local account: an unknown email registers a new account, an unconfirmed
// local account is rejected naming the provider, a confirmed one logs in.
func (s *Service) AuthenticateWithProvider(ctx context.Context, providerName string, requestParams, sessionParams map[string]string) (*User, error) {
	provider, ok := s.providers.Get(providerName)
	if !ok {
		return nil, &UpstreamError{Op: "oauth callback", Err: errUnknownProvider(providerName)}
	}

	ident, _, err := oauth.Complete(ctx, provider, requestParams, sessionParams)
	if err != nil {
		return nil, &UpstreamError{Op: "oauth " + providerName, Err: err}
	}

	user, err := s.store.UserByEmail(ctx, normalizeEmail(ident.Email))
	if err != nil {
		return nil, wrapErr("looking up user", err)
	}
	if user == nil {
		return s.registerExternal(ctx, providerName, ident)
	}
	if !user.Confirmed() {
		return nil, &UnconfirmedAccountError{Provider: providerName}
	}
	return user, nil
}

func (s *Service) registerExternal(ctx context.Context, providerName string, ident *oauth.Identity) (*User, error) {
	user, err := NewExternalUser(ExternalUserParams{
		Email:         ident.Email,
		EmailVerified: ident.EmailVerified,
		FirstName:     ident.GivenName,
		LastName:      ident.FamilyName,
		AvatarURL:     ident.Picture,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, wrapErr("creating user", err)
	}
	s.logger.Info("registered user via provider", "user_id", user.ID, "provider", providerName)
	return user, nil
}

type errUnknownProvider string

func (e errUnknownProvider) Error() string { return "unknown provider " + string(e) }

// =============================================================================
// Confirmation
// =============================================================================

// DeliverUserConfirmation issues a confirm token and hands the resulting
// link to the email sink. Already-confirmed accounts are rejected.
func (s *Service) DeliverUserConfirmation(ctx context.Context, user *User, buildURL URLBuilder) (string, error) {
	if user.Confirmed() {
		return "", ErrAlreadyConfirmed
	}
	if err := requireEmail(user); err != nil {
		return "", err
	}
	raw, token, err := GenerateToken(user.ID, ConfirmContext(), user.Email)
	if err != nil {
		return "", err
	}
	if err := s.store.InsertToken(ctx, token); err != nil {
		return "", wrapErr("storing token", err)
	}
	if err := s.email.SendConfirmationEmail(user.Email, buildURL(raw)); err != nil {
		return "", wrapErr("sending confirmation email", err)
	}
	return raw, nil
}

// ConfirmUser consumes a confirm token: it marks the account confirmed and
// deletes every outstanding confirm token in the same transaction.
func (s *Service) ConfirmUser(ctx context.Context, rawToken string) (*User, error) {
	hash, err := HashToken(rawToken)
	if err != nil {
		return nil, ErrTokenNotFound
	}

	var user *User
	err = s.store.Atomically(ctx, func(tx Store) error {
		token, err := tx.TokenByHash(ctx, hash, ConfirmContext(), s.cfg.validity(ConfirmContext()))
		if err != nil {
			return err
		}
		if token == nil {
			return ErrTokenNotFound
		}
		u, err := tx.UserByID(ctx, token.UserID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrTokenNotFound
		}
		if u.Confirmed() {
			return ErrAlreadyConfirmed
		}
		now := time.Now().UTC()
		u.ConfirmedAt = &now
		u.UpdatedAt = now
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		if err := tx.DeleteUserTokens(ctx, u.ID, ConfirmContext()); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, wrapErr("confirming user", err)
	}
	s.logger.Info("confirmed user", "user_id", user.ID)
	return user, nil
}

// =============================================================================
// Password reset
// =============================================================================

// DeliverPasswordReset issues a reset token and hands the link to the email
// sink. Reset tokens live for a much shorter window than the other kinds.
func (s *Service) DeliverPasswordReset(ctx context.Context, user *User, buildURL URLBuilder) (string, error) {
	if err := requireEmail(user); err != nil {
		return "", err
	}
	raw, token, err := GenerateToken(user.ID, ResetPasswordContext(), user.Email)
	if err != nil {
		return "", err
	}
	if err := s.store.InsertToken(ctx, token); err != nil {
		return "", wrapErr("storing token", err)
	}
	if err := s.email.SendPasswordResetEmail(user.Email, buildURL(raw)); err != nil {
		return "", wrapErr("sending reset email", err)
	}
	return raw, nil
}

// UserByResetToken resolves the holder of a live reset token without
// consuming it. The outer application calls this before accepting a new
// password.
func (s *Service) UserByResetToken(ctx context.Context, rawToken string) (*User, error) {
	hash, err := HashToken(rawToken)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	token, err := s.store.TokenByHash(ctx, hash, ResetPasswordContext(), s.cfg.validity(ResetPasswordContext()))
	if err != nil {
		return nil, wrapErr("looking up token", err)
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}
	user, err := s.store.UserByID(ctx, token.UserID)
	if err != nil {
		return nil, wrapErr("looking up user", err)
	}
	if user == nil {
		return nil, ErrTokenNotFound
	}
	return user, nil
}

// ResetPasswordByToken consumes a live reset token and sets the new password
// in the same transaction. The verify and the consume cannot be separated, so
// two concurrent consumptions of one token never both succeed: the loser
// finds the token already deleted and gets ErrTokenNotFound.
func (s *Service) ResetPasswordByToken(ctx context.Context, rawToken, newPassword string) (*User, error) {
	verr := &ValidationError{}
	validatePassword(newPassword, verr)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	tokenHash, err := HashToken(rawToken)
	if err != nil {
		return nil, ErrTokenNotFound
	}

	var user *User
	err = s.store.Atomically(ctx, func(tx Store) error {
		token, err := tx.TokenByHash(ctx, tokenHash, ResetPasswordContext(), s.cfg.validity(ResetPasswordContext()))
		if err != nil {
			return err
		}
		if token == nil {
			return ErrTokenNotFound
		}
		u, err := tx.UserByID(ctx, token.UserID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrTokenNotFound
		}
		u.PasswordHash = hash
		u.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		if err := tx.DeleteUserTokens(ctx, u.ID); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, wrapErr("resetting password", err)
	}
	s.logger.Info("reset password", "user_id", user.ID)
	return user, nil
}

// ResetPassword sets a new password and deletes every token the user holds,
// sessions included, in one transaction. A stale session surviving a
// password change is never observable.
func (s *Service) ResetPassword(ctx context.Context, user *User, newPassword string) (*User, error) {
	verr := &ValidationError{}
	validatePassword(newPassword, verr)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	err = s.store.Atomically(ctx, func(tx Store) error {
		user.PasswordHash = hash
		user.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateUser(ctx, user); err != nil {
			return err
		}
		return tx.DeleteUserTokens(ctx, user.ID)
	})
	if err != nil {
		return nil, wrapErr("resetting password", err)
	}
	s.logger.Info("reset password", "user_id", user.ID)
	return user, nil
}

// UpdatePassword changes the password of an authenticated user. The current
// password must verify first; getting it wrong is a field error, not a bare
// unauthorized. All outstanding tokens are invalidated with the update.
func (s *Service) UpdatePassword(ctx context.Context, user *User, currentPassword, newPassword string) (*User, error) {
	verr := &ValidationError{}
	if !ValidPassword(user, currentPassword) {
		verr.Add("current_password", "is not valid")
	}
	validatePassword(newPassword, verr)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return s.ResetPassword(ctx, user, newPassword)
}

// =============================================================================
// Email change
// =============================================================================

// DeliverEmailUpdate validates the new address and issues a change token.
// The token's context pins the address the account has right now, and
// SentTo snapshots the address being moved to; delivery goes to the new
// address.
func (s *Service) DeliverEmailUpdate(ctx context.Context, user *User, newEmail string, buildURL URLBuilder) (string, error) {
	newEmail = normalizeEmail(newEmail)

	verr := &ValidationError{}
	switch {
	case user.Email == "":
		verr.Add("email", "account has no email address")
	case newEmail == "":
		verr.Add("email", "can't be blank")
	case !emailRegex.MatchString(newEmail):
		verr.Add("email", "has invalid format")
	case newEmail == user.Email:
		verr.Add("email", "did not change")
	}
	if err := verr.Err(); err != nil {
		return "", err
	}

	existing, err := s.store.UserByEmail(ctx, newEmail)
	if err != nil {
		return "", wrapErr("looking up user", err)
	}
	if existing != nil {
		verr.Add("email", "has already been taken")
		return "", verr
	}

	raw, token, err := GenerateToken(user.ID, ChangeEmailContext(user.Email), newEmail)
	if err != nil {
		return "", err
	}
	if err := s.store.InsertToken(ctx, token); err != nil {
		return "", wrapErr("storing token", err)
	}
	if err := s.email.SendUpdateEmailEmail(newEmail, buildURL(raw)); err != nil {
		return "", wrapErr("sending email-change email", err)
	}
	return raw, nil
}

// UpdateEmail consumes a change token issued against the account's current
// address: the email moves to the token's SentTo snapshot, the account is
// marked confirmed, and every token under that exact change context is
// deleted, all in one transaction.
func (s *Service) UpdateEmail(ctx context.Context, user *User, rawToken string) (*User, error) {
	hash, err := HashToken(rawToken)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	changeCtx := ChangeEmailContext(user.Email)

	err = s.store.Atomically(ctx, func(tx Store) error {
		token, err := tx.TokenByHash(ctx, hash, changeCtx, s.cfg.validity(changeCtx))
		if err != nil {
			return err
		}
		if token == nil || token.UserID != user.ID {
			return ErrTokenNotFound
		}
		now := time.Now().UTC()
		user.Email = token.SentTo
		user.ConfirmedAt = &now
		user.UpdatedAt = now
		if err := tx.UpdateUser(ctx, user); err != nil {
			return err
		}
		return tx.DeleteUserTokens(ctx, user.ID, changeCtx)
	})
	if err != nil {
		return nil, wrapErr("updating email", err)
	}
	s.logger.Info("updated email", "user_id", user.ID)
	return user, nil
}

// =============================================================================
// Sessions
// =============================================================================

// CreateSession issues a session token bound to a fresh tracking id. The
// returned string is the signed transportable form; the raw secret is not
// recoverable from the persisted record.
func (s *Service) CreateSession(ctx context.Context, user *User) (string, *Token, error) {
	raw, token, err := GenerateToken(user.ID, SessionContext(), "")
	if err != nil {
		return "", nil, err
	}
	if err := s.store.InsertToken(ctx, token); err != nil {
		return "", nil, wrapErr("storing session", err)
	}
	signed, err := s.signer.Sign(raw, token.TrackingID)
	if err != nil {
		return "", nil, wrapErr("signing session", err)
	}
	return signed, token, nil
}

// UserBySessionToken authenticates a signed session token. The signature
// gives a cheap local reject; the store existence check under the sliding
// validity window is the trust decision.
func (s *Service) UserBySessionToken(ctx context.Context, signed string) (*User, error) {
	raw, _, err := s.signer.Verify(signed)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	hash, err := HashToken(raw)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	token, err := s.store.TokenByHash(ctx, hash, SessionContext(), s.cfg.validity(SessionContext()))
	if err != nil {
		return nil, wrapErr("looking up session", err)
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}
	user, err := s.store.UserByID(ctx, token.UserID)
	if err != nil {
		return nil, wrapErr("looking up user", err)
	}
	if user == nil {
		return nil, ErrTokenNotFound
	}
	return user, nil
}

// DeleteSession revokes one of the user's sessions by tracking id. The
// session backing the presented current token cannot be revoked this way.
func (s *Service) DeleteSession(ctx context.Context, user *User, trackingID, currentSigned string) error {
	currentHash, err := s.currentSessionHash(currentSigned)
	if err != nil {
		return err
	}
	token, err := s.store.SessionByTrackingID(ctx, user.ID, trackingID)
	if err != nil {
		return wrapErr("looking up session", err)
	}
	if token == nil {
		return ErrTokenNotFound
	}
	if bytes.Equal(token.Hash, currentHash) {
		return ErrCurrentSession
	}
	if err := s.store.DeleteToken(ctx, token.Hash, SessionContext()); err != nil {
		return wrapErr("deleting session", err)
	}
	return nil
}

// DeleteOtherSessions revokes every session except the presented one and
// returns the surviving session record.
func (s *Service) DeleteOtherSessions(ctx context.Context, user *User, currentSigned string) (*Token, error) {
	currentHash, err := s.currentSessionHash(currentSigned)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteSessionsExcept(ctx, user.ID, currentHash); err != nil {
		return nil, wrapErr("deleting sessions", err)
	}
	token, err := s.store.TokenByHash(ctx, currentHash, SessionContext(), s.cfg.validity(SessionContext()))
	if err != nil {
		return nil, wrapErr("looking up session", err)
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

// DeleteSessionByToken is logout: it drops the session matching the signed
// token and is a no-op when nothing matches.
func (s *Service) DeleteSessionByToken(ctx context.Context, signed string) error {
	raw, _, err := s.signer.Verify(signed)
	if err != nil {
		return nil
	}
	hash, err := HashToken(raw)
	if err != nil {
		return nil
	}
	if err := s.store.DeleteToken(ctx, hash, SessionContext()); err != nil {
		return wrapErr("deleting session", err)
	}
	return nil
}

func (s *Service) currentSessionHash(currentSigned string) ([]byte, error) {
	raw, _, err := s.signer.Verify(currentSigned)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	return HashToken(raw)
}
