// AngelaMos | 2026
// entity.go

package account

import (
	"errors"
	"time"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Account struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	Paid         bool      `db:"paid"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type Stats struct {
	Total int `db:"total" json:"total"`
	Paid  int `db:"paid"  json:"paid"`
}

const (
	maxUsernameLength = 100
	maxPasswordLength = 128

	legacyPasswordRepair = "legacy_password_digest"
)
