package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"alpacastream/pkg/alpaca"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("email already exists")
)

const bcryptCost = 10

// User is a registered account together with its Alpaca keys.
type User struct {
	ID              string
	Name            string
	Email           string
	PasswordHash    string
	AlpacaAPIKey    string
	AlpacaSecretKey string
	AlpacaPaperURL  string
	CreatedAt       time.Time
}

// Credentials returns the keys used to build the user's Alpaca client.
func (u *User) Credentials() alpaca.Credentials {
	return alpaca.Credentials{
		KeyID:     u.AlpacaAPIKey,
		SecretKey: u.AlpacaSecretKey,
		BaseURL:   u.AlpacaPaperURL,
	}
}

// HasAlpacaKeys reports whether both keys are set.
func (u *User) HasAlpacaKeys() bool {
	return u.AlpacaAPIKey != "" && u.AlpacaSecretKey != ""
}

type NewUser struct {
	Name            string
	Email           string
	Password        string
	AlpacaAPIKey    string
	AlpacaSecretKey string
	AlpacaPaperURL  string
}

// CredentialsUpdate replaces the non-empty fields only.
type CredentialsUpdate struct {
	AlpacaAPIKey    string `json:"alpacaApiKey"`
	AlpacaSecretKey string `json:"alpacaSecretKey"`
	AlpacaPaperURL  string `json:"alpacaPaperUrl"`
}

func (c CredentialsUpdate) apply(u *User) {
	if c.AlpacaAPIKey != "" {
		u.AlpacaAPIKey = c.AlpacaAPIKey
	}
	if c.AlpacaSecretKey != "" {
		u.AlpacaSecretKey = c.AlpacaSecretKey
	}
	if c.AlpacaPaperURL != "" {
		u.AlpacaPaperURL = c.AlpacaPaperURL
	}
}

// Store persists users. Implementations return ErrNotFound for unknown ids.
type Store interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateCredentials(ctx context.Context, id string, upd CredentialsUpdate) (*User, error)
	Delete(ctx context.Context, id string) error
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(u *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
