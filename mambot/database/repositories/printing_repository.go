package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/uptrace/bun"
)

var ErrPrintingNotFound = errors.New("printing not found")

type PrintingRepository interface {
	GetByID(ctx context.Context, id string) (*models.Printing, error)
	// Resolve returns all printings of a card name, optionally limited
	// to one set.
	Resolve(ctx context.Context, cardName, setName string) ([]*models.Printing, error)
	All(ctx context.Context) ([]*models.Printing, error)
	// UpsertAll syncs the catalog rows in one transaction.
	UpsertAll(ctx context.Context, printings []*models.Printing) error
}

type printingRepository struct {
	db *bun.DB
}

func NewPrintingRepository(db *bun.DB) PrintingRepository {
	return &printingRepository{db: db}
}

func (r *printingRepository) GetByID(ctx context.Context, id string) (*models.Printing, error) {
	printing := new(models.Printing)
	err := r.db.NewSelect().
		Model(printing).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrintingNotFound
		}
		return nil, fmt.Errorf("failed to get printing: %w", err)
	}
	return printing, nil
}

func (r *printingRepository) Resolve(ctx context.Context, cardName, setName string) ([]*models.Printing, error) {
	q := r.db.NewSelect().
		Model((*models.Printing)(nil)).
		Where("LOWER(name) = LOWER(?)", cardName)
	if setName != "" {
		q = q.Where("LOWER(set_name) = LOWER(?)", setName)
	}

	var printings []*models.Printing
	if err := q.Order("set_name ASC", "rarity ASC").Scan(ctx, &printings); err != nil {
		return nil, fmt.Errorf("failed to resolve printings: %w", err)
	}
	return printings, nil
}

func (r *printingRepository) All(ctx context.Context) ([]*models.Printing, error) {
	var printings []*models.Printing
	err := r.db.NewSelect().
		Model(&printings).
		Order("set_name ASC", "name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list printings: %w", err)
	}
	return printings, nil
}

func (r *printingRepository) UpsertAll(ctx context.Context, printings []*models.Printing) error {
	if len(printings) == 0 {
		return nil
	}
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&printings).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("rarity = EXCLUDED.rarity").
			Set("set_name = EXCLUDED.set_name").
			Set("set_id = EXCLUDED.set_id").
			Set("code = EXCLUDED.code").
			Set("card_id = EXCLUDED.card_id").
			Set("craftable = EXCLUDED.craftable").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert printings: %w", err)
		}
		return nil
	})
}
