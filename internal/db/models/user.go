package models

import (
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"
)

// User represents a local user account provisioned from the directory.
// The directory login is the stable key used to find the account again.
type User struct {
	// ID is the unique identifier for the user.
	ID uint64 `gorm:"primaryKey"`
	// Login is the unique directory login (external user id).
	Login string `gorm:"uniqueIndex;size:191;not null"`
	// Email is the user's email address. Unique across accounts.
	Email string `gorm:"uniqueIndex;size:191;not null"`
	// Nicename is the URL friendly name.
	Nicename string `gorm:"size:100;not null"`
	// Nickname is the short display handle.
	Nickname string `gorm:"size:100;not null"`
	// DisplayName is the name shown in change logs and admin screens.
	DisplayName string `gorm:"size:255;not null"`
	// FirstName is the user's first or given name.
	FirstName string `gorm:"size:100"`
	// LastName is the user's last or family name.
	LastName string `gorm:"size:100"`
	// Password is an Argon2id hash of a random secret. Provisioned users log in through the directory.
	Password string `gorm:"size:255"`
	// Active indicates whether the account may log in.
	Active bool
	// CreatedAt is the timestamp when the user was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the user was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the User model.
func (User) TableName() string {
	return "users"
}

// HashPassword hashes a plaintext password using the Argon2id algorithm.
func HashPassword(password string) string {
	hashedPassword, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatal().Msgf("failed to hash password: %v", err)
	}

	return hashedPassword
}

// VerifyPassword verifies a plaintext password against the stored hash.
func (u *User) VerifyPassword(password string) bool {
	match, err := argon2id.ComparePasswordAndHash(password, u.Password)
	if err != nil {
		log.Error().Msgf("failed to verify password: %v", err)
		return false
	}

	return match
}
