package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alpacastream/config"
	"alpacastream/pkg/alpaca"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Invalidator drops a user's cached upstream client.
type Invalidator interface {
	Invalidate(userID string)
}

// Service wraps a Store with the flows that must touch other components.
type Service struct {
	store  Store
	cache  Invalidator
	logger *zap.Logger
}

func NewService(store Store, cache Invalidator, logger *zap.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// Register hashes the password and stores a new user.
func (s *Service) Register(ctx context.Context, nu NewUser) (*User, error) {
	hash, err := HashPassword(nu.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if nu.AlpacaPaperURL == "" {
		nu.AlpacaPaperURL = alpaca.DefaultPaperURL
	}

	u := &User{
		ID:              uuid.NewString(),
		Name:            nu.Name,
		Email:           normalizeEmail(nu.Email),
		PasswordHash:    hash,
		AlpacaAPIKey:    nu.AlpacaAPIKey,
		AlpacaSecretKey: nu.AlpacaSecretKey,
		AlpacaPaperURL:  nu.AlpacaPaperURL,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !VerifyPassword(u, password) {
		return nil, ErrNotFound
	}
	return u, nil
}

// UpdateCredentials stores new Alpaca keys and drops the cached client so the
// next lookup builds one with the new keys.
func (s *Service) UpdateCredentials(ctx context.Context, id string, upd CredentialsUpdate) (*User, error) {
	u, err := s.store.UpdateCredentials(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(id)
	s.logger.Info("alpaca credentials updated", zap.String("user_id", id))
	return u, nil
}

// Seed registers the configured users that do not exist yet.
func (s *Service) Seed(ctx context.Context, seeds []config.SeedUser) error {
	for _, seed := range seeds {
		_, err := s.store.GetByEmail(ctx, seed.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("lookup seed user %s: %w", seed.Email, err)
		}

		u, err := s.Register(ctx, NewUser{
			Name:            seed.Name,
			Email:           seed.Email,
			Password:        seed.Password,
			AlpacaAPIKey:    seed.AlpacaAPIKey,
			AlpacaSecretKey: seed.AlpacaSecretKey,
			AlpacaPaperURL:  seed.AlpacaPaperURL,
		})
		if err != nil {
			return fmt.Errorf("seed user %s: %w", seed.Email, err)
		}
		s.logger.Info("seeded user", zap.String("user_id", u.ID), zap.String("email", u.Email))
	}
	return nil
}
