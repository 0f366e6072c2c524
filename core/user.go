package core

import (
	"context"
	"errors"
	"time"
)

// Role is the platform-wide role of a principal.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Principal is an authenticated actor.
type Principal struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// Elevated reports whether the principal may moderate any room.
func (p Principal) Elevated() bool {
	return p.Role == RoleAdmin || p.Role == RoleModerator
}

type User struct {
	DisplayName string `json:"display_name" validate:"required,max=64"`
	Username    string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Role        Role   `json:"-"`
}

type UserWithoutSecrets struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Username    string    `json:"username"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u UserWithoutSecrets) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role}
}

var (
	ErrConflictedUser = errors.New("user already exists")
)

type UserStore interface {
	// CreateUser creates a user with a hashed password.
	// An empty role defaults to RoleUser.
	// If the username is taken, it returns ErrConflictedUser.
	CreateUser(ctx context.Context, user User) (*UserWithoutSecrets, error)

	// GetUserByUsername returns the user with the given username.
	// If the user is not found, it returns nil.
	GetUserByUsername(ctx context.Context, username string) (*UserWithoutSecrets, error)

	// GetUserByID returns the user with the given id.
	// If the user is not found, it returns nil.
	GetUserByID(ctx context.Context, id int64) (*UserWithoutSecrets, error)

	// ComparePassword returns the user when the password matches.
	// If the user does not exist or the password is wrong, it returns nil.
	ComparePassword(ctx context.Context, username, password string) (*UserWithoutSecrets, error)
}
