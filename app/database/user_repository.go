package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ UserRepository = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) CreateUser(accessToken string) (*User, error) {
	now := time.Now().UTC()
	res, err := r.db.Exec(`
		INSERT INTO users (access_token, created_at) VALUES (?, ?)
		ON CONFLICT (access_token) DO NOTHING
	`, accessToken, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return r.GetUserByToken(accessToken)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}

	return &User{ID: id, AccessToken: accessToken, CreatedAt: now}, nil
}

func (r *UserRepo) GetUser(id int64) (*User, error) {
	var user User
	err := r.db.QueryRow(`
		SELECT id, access_token, created_at FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.AccessToken, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *UserRepo) GetUserByToken(accessToken string) (*User, error) {
	var user User
	err := r.db.QueryRow(`
		SELECT id, access_token, created_at FROM users WHERE access_token = ?
	`, accessToken).Scan(&user.ID, &user.AccessToken, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by token: %w", err)
	}

	return &user, nil
}
