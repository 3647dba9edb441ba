package postgres

import (
	"time"

	"alpacastream/internal/users"
)

// UserRecord is the persisted form of users.User.
type UserRecord struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	Name            string `gorm:"type:text;not null"`
	Email           string `gorm:"type:text;not null;uniqueIndex:idx_user_email"`
	PasswordHash    string `gorm:"type:text;not null"`
	AlpacaAPIKey    string `gorm:"type:text"`
	AlpacaSecretKey string `gorm:"type:text"`
	AlpacaPaperURL  string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (UserRecord) TableName() string {
	return "user_record"
}

func toUserRecord(u *users.User) *UserRecord {
	return &UserRecord{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		PasswordHash:    u.PasswordHash,
		AlpacaAPIKey:    u.AlpacaAPIKey,
		AlpacaSecretKey: u.AlpacaSecretKey,
		AlpacaPaperURL:  u.AlpacaPaperURL,
		CreatedAt:       u.CreatedAt,
	}
}

func (r *UserRecord) toUser() *users.User {
	return &users.User{
		ID:              r.ID,
		Name:            r.Name,
		Email:           r.Email,
		PasswordHash:    r.PasswordHash,
		AlpacaAPIKey:    r.AlpacaAPIKey,
		AlpacaSecretKey: r.AlpacaSecretKey,
		AlpacaPaperURL:  r.AlpacaPaperURL,
		CreatedAt:       r.CreatedAt,
	}
}
