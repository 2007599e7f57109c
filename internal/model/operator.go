package model

import "time"

// Operator is an authorized admin-API principal.
type Operator struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	TokenHash string    `db:"token_hash" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
