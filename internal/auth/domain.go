package auth

import "time"

// Account represents a business account that owns clients, items, lots and
// bills. All domain queries are scoped to one account.
type Account struct {
	ID           int64
	Email        string
	BusinessName string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
