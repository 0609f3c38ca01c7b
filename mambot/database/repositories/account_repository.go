package repositories

import (
	"context"
	"fmt"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/uptrace/bun"
)

type AccountRepository interface {
	Exists(ctx context.Context, userID string) (bool, error)
	ListIDs(ctx context.Context) ([]string, error)
}

type accountRepository struct {
	db *bun.DB
}

func NewAccountRepository(db *bun.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Exists(ctx context.Context, userID string) (bool, error) {
	return r.db.NewSelect().
		Model((*models.Account)(nil)).
		Where("user_id = ?", userID).
		Exists(ctx)
}

func (r *accountRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Column("user_id").
		Order("user_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return ids, nil
}
