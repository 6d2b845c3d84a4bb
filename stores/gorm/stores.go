package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/arjenw/accounts"
)

// Store implements accounts.Store over a *gorm.DB. Atomically maps onto
// gorm's Transaction, so the verify-then-delete and update-then-delete
// flows in the service run as single database transactions.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate runs database migrations for the accounts tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserModel{}, &TokenModel{})
}

func (s *Store) Atomically(ctx context.Context, fn func(tx accounts.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) UserByID(ctx context.Context, id string) (*accounts.User, error) {
	return s.firstUser(ctx, "id = ?", id)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return s.firstUser(ctx, "email = ?", email)
}

func (s *Store) UserByPhone(ctx context.Context, phone string) (*accounts.User, error) {
	return s.firstUser(ctx, "phone = ?", phone)
}

func (s *Store) UserByIdentifier(ctx context.Context, identifier string) (*accounts.User, error) {
	return s.firstUser(ctx, "email = ? OR phone = ?", identifier, identifier)
}

func (s *Store) firstUser(ctx context.Context, query string, args ...any) (*accounts.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).Where(query, args...).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.toUser(), nil
}

func (s *Store) CreateUser(ctx context.Context, u *accounts.User) error {
	return s.db.WithContext(ctx).Create(userToModel(u)).Error
}

func (s *Store) UpdateUser(ctx context.Context, u *accounts.User) error {
	return s.db.WithContext(ctx).Save(userToModel(u)).Error
}

// =============================================================================
// Tokens
// =============================================================================

func (s *Store) InsertToken(ctx context.Context, t *accounts.Token) error {
	return s.db.WithContext(ctx).Create(tokenToModel(t)).Error
}

func (s *Store) TokenByHash(ctx context.Context, hash []byte, c accounts.Context, maxAge time.Duration) (*accounts.Token, error) {
	var model TokenModel
	err := s.db.WithContext(ctx).
		Where("hash = ? AND context = ? AND inserted_at > ?", hash, c.String(), time.Now().UTC().Add(-maxAge)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.toToken()
}

func (s *Store) SessionByTrackingID(ctx context.Context, userID, trackingID string) (*accounts.Token, error) {
	var model TokenModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND context = ? AND tracking_id = ?", userID, accounts.SessionContext().String(), trackingID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.toToken()
}

func (s *Store) DeleteToken(ctx context.Context, hash []byte, c accounts.Context) error {
	return s.db.WithContext(ctx).
		Delete(&TokenModel{}, "hash = ? AND context = ?", hash, c.String()).Error
}

func (s *Store) DeleteUserTokens(ctx context.Context, userID string, contexts ...accounts.Context) error {
	db := s.db.WithContext(ctx)
	if len(contexts) == 0 {
		return db.Delete(&TokenModel{}, "user_id = ?", userID).Error
	}
	names := make([]string, len(contexts))
	for i, c := range contexts {
		names[i] = c.String()
	}
	return db.Delete(&TokenModel{}, "user_id = ? AND context IN ?", userID, names).Error
}

func (s *Store) DeleteSessionsExcept(ctx context.Context, userID string, keep []byte) error {
	return s.db.WithContext(ctx).
		Delete(&TokenModel{}, "user_id = ? AND context = ? AND hash <> ?",
			userID, accounts.SessionContext().String(), keep).Error
}
