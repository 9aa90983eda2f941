package backend

import (
	"context"

	"github.com/google/uuid"
	"github.com/matheus3301/smartcart/internal/auth"
)

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (auth.User, error) {
	u := auth.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, CreatedAt: s.stamp()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return auth.User{}, translate(err)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return auth.User{}, translate(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
