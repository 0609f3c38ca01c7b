package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/uptrace/bun"
)

type OverrideRepository interface {
	// Set replaces any existing override for the same target.
	Set(ctx context.Context, override *models.ConversionOverride) error
	// ClearByPrinting removes the override for one printing.
	ClearByPrinting(ctx context.Context, printingID string) (int64, error)
	// ClearByCard removes card-level overrides for the name, plus any
	// printing-specific overrides resolving to (card, set).
	ClearByCard(ctx context.Context, cardName, setName string) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]*models.ConversionOverride, error)
	// Effective returns the active override that applies to the printing:
	// printing-specific first, card-level second, nil when neither exists.
	Effective(ctx context.Context, printing *models.Printing, now time.Time) (*models.ConversionOverride, error)
}

type overrideRepository struct {
	db *bun.DB
}

func NewOverrideRepository(db *bun.DB) OverrideRepository {
	return &overrideRepository{db: db}
}

func (r *overrideRepository) Set(ctx context.Context, override *models.ConversionOverride) error {
	override.CreatedAt = time.Now()
	override.CardName = strings.TrimSpace(override.CardName)

	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		del := tx.NewDelete().Model((*models.ConversionOverride)(nil))
		if override.PrintingID != "" {
			del = del.Where("printing_id = ?", override.PrintingID)
		} else {
			del = del.Where("printing_id = '' AND LOWER(card_name) = LOWER(?)", override.CardName)
		}
		if _, err := del.Exec(ctx); err != nil {
			return fmt.Errorf("failed to replace override: %w", err)
		}

		if _, err := tx.NewInsert().Model(override).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert override: %w", err)
		}
		return nil
	})
}

func (r *overrideRepository) ClearByPrinting(ctx context.Context, printingID string) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.ConversionOverride)(nil)).
		Where("printing_id = ?", printingID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear override: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (r *overrideRepository) ClearByCard(ctx context.Context, cardName, setName string) (int64, error) {
	var total int64
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.ConversionOverride)(nil)).
			Where("printing_id = '' AND LOWER(card_name) = LOWER(?)", cardName).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear card override: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n

		// Printing-specific overrides matching (card, set).
		var printingIDs []string
		err = tx.NewSelect().
			Model((*models.Printing)(nil)).
			Column("id").
			Where("LOWER(name) = LOWER(?) AND LOWER(set_name) = LOWER(?)", cardName, setName).
			Scan(ctx, &printingIDs)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to resolve printings: %w", err)
		}
		if len(printingIDs) > 0 {
			res, err = tx.NewDelete().
				Model((*models.ConversionOverride)(nil)).
				Where("printing_id IN (?)", bun.In(printingIDs)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to clear printing overrides: %w", err)
			}
			n, _ = res.RowsAffected()
			total += n
		}
		return nil
	})
	return total, err
}

func (r *overrideRepository) ListActive(ctx context.Context, now time.Time) ([]*models.ConversionOverride, error) {
	var overrides []*models.ConversionOverride
	err := r.db.NewSelect().
		Model(&overrides).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	return overrides, nil
}

func (r *overrideRepository) Effective(ctx context.Context, printing *models.Printing, now time.Time) (*models.ConversionOverride, error) {
	override := new(models.ConversionOverride)
	err := r.db.NewSelect().
		Model(override).
		Where("printing_id = ?", printing.ID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return override, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get printing override: %w", err)
	}

	override = new(models.ConversionOverride)
	err = r.db.NewSelect().
		Model(override).
		Where("printing_id = '' AND LOWER(card_name) = LOWER(?)", printing.Name).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card override: %w", err)
	}
	return override, nil
}
