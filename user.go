package accounts

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Password policy. bcrypt ignores input past 72 bytes, so longer passwords
// are rejected rather than silently truncated.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// User is an identity record. Exactly one of Email or Phone is set; the
// exclusivity is enforced at construction time so it holds even without a
// database constraint backing it.
type User struct {
	ID string

	Email string
	Phone string

	// PasswordHash is empty for accounts created through an OAuth provider
	// that never set a password.
	PasswordHash string

	// ConfirmedAt is nil until the account's email is confirmed.
	ConfirmedAt *time.Time

	FirstName string
	LastName  string
	AvatarURL string
	Admin     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Confirmed reports whether the account's email has been confirmed.
func (u *User) Confirmed() bool { return u.ConfirmedAt != nil }

// Identifier returns whichever of email or phone identifies this account.
func (u *User) Identifier() string {
	if u.Email != "" {
		return u.Email
	}
	return u.Phone
}

// UserParams carries the attributes accepted at password registration.
type UserParams struct {
	Email    string
	Phone    string
	Password string

	FirstName string
	LastName  string
	AvatarURL string
}

// NewUser validates params and builds an unconfirmed user with a hashed
// password. Validation failures are returned as a *ValidationError with
// field-level messages.
func NewUser(p UserParams) (*User, error) {
	p.Email = normalizeEmail(p.Email)
	p.Phone = normalizePhone(p.Phone)

	verr := &ValidationError{}
	validateIdentifier(p.Email, p.Phone, verr)
	validatePassword(p.Password, verr)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	hash, err := hashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &User{
		ID:           uuid.NewString(),
		Email:        p.Email,
		Phone:        p.Phone,
		PasswordHash: hash,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		AvatarURL:    p.AvatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ExternalUserParams carries the normalized identity asserted by an OAuth
// provider for registration without a password.
type ExternalUserParams struct {
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	AvatarURL     string
}

// NewExternalUser builds a user from a provider-asserted identity. No
// password hash is set. When the provider asserts a verified email the
// account starts out confirmed.
func NewExternalUser(p ExternalUserParams) (*User, error) {
	p.Email = normalizeEmail(p.Email)

	verr := &ValidationError{}
	if p.Email == "" {
		verr.Add("email", "can't be blank")
	} else if !emailRegex.MatchString(p.Email) {
		verr.Add("email", "has invalid format")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u := &User{
		ID:        uuid.NewString(),
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		AvatarURL: p.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.EmailVerified {
		u.ConfirmedAt = &now
	}
	return u, nil
}

func validateIdentifier(email, phone string, verr *ValidationError) {
	switch {
	case email == "" && phone == "":
		verr.Add("email", "either email or phone must be set")
	case email != "" && phone != "":
		verr.Add("email", "only one of email or phone may be set")
	case email != "":
		if !emailRegex.MatchString(email) {
			verr.Add("email", "has invalid format")
		}
	default:
		if len(strings.TrimLeft(phone, "+0123456789")) != 0 || len(phone) < 10 {
			verr.Add("phone", "has invalid format")
		}
	}
}

func validatePassword(password string, verr *ValidationError) {
	switch {
	case password == "":
		verr.Add("password", "can't be blank")
	case len(password) < MinPasswordLength:
		verr.Add("password", "is too short")
	case len(password) > MaxPasswordLength:
		verr.Add("password", "is too long")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeIdentifier applies the same normalization registration applies,
// so lookups match however the caller writes the identifier.
func normalizeIdentifier(identifier string) string {
	if strings.Contains(identifier, "@") {
		return normalizeEmail(identifier)
	}
	return normalizePhone(identifier)
}

func normalizePhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
