package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type SQLiteUserStore struct {
	db *sql.DB
}

func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{
		db: db,
	}
}

func (s *SQLiteUserStore) CreateUser(ctx context.Context, user User) (*UserWithoutSecrets, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	role := user.Role
	if role == "" {
		role = RoleUser
	}

	created := &UserWithoutSecrets{
		DisplayName: user.DisplayName,
		Username:    user.Username,
		Role:        role,
		CreatedAt:   nowUTC(),
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO users (display_name, username, password, role, created_at)
		VALUES (@display_name, @username, @password, @role, @created_at) RETURNING id`,
		sql.Named("display_name", user.DisplayName), sql.Named("username", user.Username),
		sql.Named("password", string(hashed)), sql.Named("role", role),
		sql.Named("created_at", created.CreatedAt))
	if err := row.Scan(&created.ID); err != nil {
		return nil, fmt.Errorf("creating user: %w", translateSQLiteError(err, ErrConflictedUser, nil))
	}

	return created, nil
}

const selectUser = `SELECT id, display_name, username, role, created_at FROM users`

func scanUser(row *sql.Row) (*UserWithoutSecrets, error) {
	user := new(UserWithoutSecrets)
	err := row.Scan(&user.ID, &user.DisplayName, &user.Username, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return user, nil
}

func (s *SQLiteUserStore) GetUserByUsername(ctx context.Context, username string) (*UserWithoutSecrets, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+" WHERE username = ? LIMIT 1", username))
}

func (s *SQLiteUserStore) GetUserByID(ctx context.Context, id int64) (*UserWithoutSecrets, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+" WHERE id = ? LIMIT 1", id))
}

func (s *SQLiteUserStore) ComparePassword(ctx context.Context, username, password string) (*UserWithoutSecrets, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, display_name, username, role, created_at, password FROM users WHERE username = ? LIMIT 1", username)

	var user UserWithoutSecrets
	var storedPassword string
	err := row.Scan(&user.ID, &user.DisplayName, &user.Username, &user.Role, &user.CreatedAt, &storedPassword)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning password: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedPassword), []byte(password)); err != nil {
		return nil, nil
	}

	return &user, nil
}
