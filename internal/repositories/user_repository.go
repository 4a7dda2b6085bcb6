package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// UserRepository is the identity collaborator: it only answers whether a
// user identity exists. Identity management itself lives elsewhere.
type UserRepository interface {
	Exists(ctx context.Context, userID int) (bool, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Exists checks whether a user with the given id is known.
func (r *UserRepo) Exists(ctx context.Context, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID)
	return exists, err
}
