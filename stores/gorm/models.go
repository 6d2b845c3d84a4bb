package gorm

import (
	"time"

	"github.com/arjenw/accounts"
)

// UserModel is the GORM model for users. Email and phone are nullable
// columns so the partial unique indexes only bite on the identifier a row
// actually carries.
type UserModel struct {
	ID           string  `gorm:"primaryKey;size:36"`
	Email        *string `gorm:"uniqueIndex;size:160"`
	Phone        *string `gorm:"uniqueIndex;size:32"`
	PasswordHash string  `gorm:"size:100"`
	ConfirmedAt  *time.Time
	FirstName    string `gorm:"size:100"`
	LastName     string `gorm:"size:100"`
	AvatarURL    string `gorm:"size:512"`
	Admin        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Tokens []TokenModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (UserModel) TableName() string { return "users" }

// TokenModel is the GORM model for tokens. Only the SHA-256 digest of the
// secret is stored; (hash, context) is unique.
type TokenModel struct {
	ID         uint   `gorm:"primaryKey"`
	Hash       []byte `gorm:"uniqueIndex:idx_tokens_hash_context;size:32;not null"`
	Context    string `gorm:"uniqueIndex:idx_tokens_hash_context;size:192;not null"`
	UserID     string `gorm:"index;size:36;not null"`
	SentTo     string `gorm:"size:160"`
	TrackingID string `gorm:"index;size:36"`
	InsertedAt time.Time
}

func (TokenModel) TableName() string { return "user_tokens" }

func userToModel(u *accounts.User) *UserModel {
	m := &UserModel{
		ID:           u.ID,
		PasswordHash: u.PasswordHash,
		ConfirmedAt:  u.ConfirmedAt,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		AvatarURL:    u.AvatarURL,
		Admin:        u.Admin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.Email != "" {
		m.Email = &u.Email
	}
	if u.Phone != "" {
		m.Phone = &u.Phone
	}
	return m
}

func (m *UserModel) toUser() *accounts.User {
	u := &accounts.User{
		ID:           m.ID,
		PasswordHash: m.PasswordHash,
		ConfirmedAt:  m.ConfirmedAt,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		AvatarURL:    m.AvatarURL,
		Admin:        m.Admin,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.Email != nil {
		u.Email = *m.Email
	}
	if m.Phone != nil {
		u.Phone = *m.Phone
	}
	return u
}

func tokenToModel(t *accounts.Token) *TokenModel {
	return &TokenModel{
		Hash:       t.Hash,
		Context:    t.Context.String(),
		UserID:     t.UserID,
		SentTo:     t.SentTo,
		TrackingID: t.TrackingID,
		InsertedAt: t.InsertedAt,
	}
}

func (m *TokenModel) toToken() (*accounts.Token, error) {
	c, err := accounts.ParseContext(m.Context)
	if err != nil {
		return nil, err
	}
	return &accounts.Token{
		Hash:       m.Hash,
		Context:    c,
		UserID:     m.UserID,
		SentTo:     m.SentTo,
		TrackingID: m.TrackingID,
		InsertedAt: m.InsertedAt,
	}, nil
}
