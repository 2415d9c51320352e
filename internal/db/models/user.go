package models

import "github.com/uptrace/bun"

// User ties a username to its roles. Passwords live with the identity
// provider, not here.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	Username  string       `bun:",pk"`
	Roles     []string     `bun:",type:jsonb"`
	CreatedAt bun.NullTime `bun:",nullzero,notnull,default:current_timestamp"`
}

// Role carries permission strings of the form "category:action", e.g.
// "checkpoint:all" or "inference:create".
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	Name        string   `bun:",pk"`
	Permissions []string `bun:",type:jsonb"`
}
