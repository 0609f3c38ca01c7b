package repositories

import (
	"context"
	"fmt"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/uptrace/bun"
)

type WishlistRepository interface {
	Set(ctx context.Context, userID, printingID string, desired int64) error
	Clear(ctx context.Context, userID, printingID string) error
	ClearAll(ctx context.Context, userID string) error
	ListByUser(ctx context.Context, userID string) ([]*models.WishlistEntry, error)
	// Wishers lists users wanting the printing.
	Wishers(ctx context.Context, printingID string) ([]*models.WishlistEntry, error)
}

type wishlistRepository struct {
	db *bun.DB
}

func NewWishlistRepository(db *bun.DB) WishlistRepository {
	return &wishlistRepository{db: db}
}

func (r *wishlistRepository) Set(ctx context.Context, userID, printingID string, desired int64) error {
	if desired <= 0 {
		return r.Clear(ctx, userID, printingID)
	}
	entry := &models.WishlistEntry{
		UserID:     userID,
		PrintingID: printingID,
		Desired:    desired,
	}
	_, err := r.db.NewInsert().
		Model(entry).
		On("CONFLICT (user_id, printing_id) DO UPDATE").
		Set("desired = EXCLUDED.desired").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set wishlist entry: %w", err)
	}
	return nil
}

func (r *wishlistRepository) Clear(ctx context.Context, userID, printingID string) error {
	_, err := r.db.NewDelete().
		Model((*models.WishlistEntry)(nil)).
		Where("user_id = ? AND printing_id = ?", userID, printingID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear wishlist entry: %w", err)
	}
	return nil
}

func (r *wishlistRepository) ClearAll(ctx context.Context, userID string) error {
	_, err := r.db.NewDelete().
		Model((*models.WishlistEntry)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear wishlist: %w", err)
	}
	return nil
}

func (r *wishlistRepository) ListByUser(ctx context.Context, userID string) ([]*models.WishlistEntry, error) {
	var entries []*models.WishlistEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("user_id = ?", userID).
		Order("printing_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}
	return entries, nil
}

func (r *wishlistRepository) Wishers(ctx context.Context, printingID string) ([]*models.WishlistEntry, error) {
	var entries []*models.WishlistEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("printing_id = ?", printingID).
		Order("user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishers: %w", err)
	}
	return entries, nil
}
