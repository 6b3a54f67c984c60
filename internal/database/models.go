package database

import (
	"time"
)

// DisplayName is a player's chosen name, keyed by the chat platform's user
// identifier.
type DisplayName struct {
	UserID      string    `db:"user_id"`
	DisplayName string    `db:"display_name"`
	UpdatedAt   time.Time `db:"updated_at"`
}
