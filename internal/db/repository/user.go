package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sdstation/middleware/internal/db/models"
	"github.com/sdstation/middleware/internal/types"
	"github.com/uptrace/bun"
)

type IUserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	ListRoles(ctx context.Context, names []string) ([]models.Role, error)
}

type UserRepository struct {
	db bun.IDB
}

func NewUserRepository(db *bun.DB) IUserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.NewSelect().Model(&user).Where("username = ?", username).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", username, types.ErrNotFound)
		}
		return nil, err
	}

	return &user, nil
}

func (r *UserRepository) ListRoles(ctx context.Context, names []string) ([]models.Role, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var roles []models.Role
	if err := r.db.NewSelect().Model(&roles).Where("name IN (?)", bun.In(names)).Scan(ctx); err != nil {
		return nil, err
	}

	return roles, nil
}
