package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/pavelanni/archimedes/internal/model"
)

// EnsureUser returns the existing user, creating one with the given name
// if the users table is empty.
func (s *Store) EnsureUser(ctx context.Context, name string) (model.User, error) {
	u, err := s.GetUser(ctx)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.User{}, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, created_at) VALUES (?, ?)`, name, now,
	)
	if err != nil {
		slog.Error("failed to create user", "name", name, "error", err)
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	slog.Info("created user", "id", id, "name", name)
	return model.User{ID: id, Name: name, CreatedAt: now}, nil
}

// GetUser returns the first user.
func (s *Store) GetUser(ctx context.Context) (model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM users ORDER BY id LIMIT 1`,
	).Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// RenameUser changes the display name of a user.
func (s *Store) RenameUser(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
