package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"alpacastream/internal/users"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserStore implements users.Store on top of PostgresClient.
type UserStore struct {
	client *PostgresClient
}

var _ users.Store = (*UserStore)(nil)

func NewUserStore(client *PostgresClient) *UserStore {
	return &UserStore{client: client}
}

func (s *UserStore) Create(ctx context.Context, u *users.User) error {
	tx := s.client.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(toUserRecord(u))

	if tx.Error != nil {
		return fmt.Errorf("insert user: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return users.ErrEmailExists
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.first(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserStore) UpdateCredentials(ctx context.Context, id string, upd users.CredentialsUpdate) (*users.User, error) {
	updates := map[string]any{}
	if upd.AlpacaAPIKey != "" {
		updates["alpaca_api_key"] = upd.AlpacaAPIKey
	}
	if upd.AlpacaSecretKey != "" {
		updates["alpaca_secret_key"] = upd.AlpacaSecretKey
	}
	if upd.AlpacaPaperURL != "" {
		updates["alpaca_paper_url"] = upd.AlpacaPaperURL
	}

	if len(updates) > 0 {
		tx := s.client.DB.WithContext(ctx).
			Model(&UserRecord{}).
			Where("id = ?", id).
			Updates(updates)
		if tx.Error != nil {
			return nil, fmt.Errorf("update credentials: %w", tx.Error)
		}
		if tx.RowsAffected == 0 {
			return nil, users.ErrNotFound
		}
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	tx := s.client.DB.WithContext(ctx).Where("id = ?", id).Delete(&UserRecord{})
	if tx.Error != nil {
		return fmt.Errorf("delete user: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (s *UserStore) first(ctx context.Context, query string, arg any) (*users.User, error) {
	var rec UserRecord
	err := s.client.DB.WithContext(ctx).Where(query, arg).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toUser(), nil
}
