package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/uptrace/bun"
)

// OwnedPrinting pairs a held copy row with its catalog printing.
type OwnedPrinting struct {
	Copy     *models.CardCopy
	Printing *models.Printing
}

type CollectionRepository interface {
	ListByUser(ctx context.Context, userID string, excludeBinder bool) ([]*OwnedPrinting, error)
	// ListByUserSetRarity returns a user's copies within one set and rarity.
	ListByUserSetRarity(ctx context.Context, userID, setName, rarity string) ([]*OwnedPrinting, error)
	// BinderHolders lists users holding the printing in their binder.
	BinderHolders(ctx context.Context, printingID string) ([]*models.CardCopy, error)
	AllCopies(ctx context.Context) ([]*models.CardCopy, error)
}

type collectionRepository struct {
	db *bun.DB
}

func NewCollectionRepository(db *bun.DB) CollectionRepository {
	return &collectionRepository{db: db}
}

type ownedRow struct {
	UserID     string    `bun:"user_id"`
	PrintingID string    `bun:"printing_id"`
	Owned      int64     `bun:"owned"`
	Binder     int64     `bun:"binder"`
	UpdatedAt  time.Time `bun:"updated_at"`
	Name       string    `bun:"name"`
	Rarity     string    `bun:"rarity"`
	SetName    string    `bun:"set_name"`
	SetID      int       `bun:"set_id"`
	Code       string    `bun:"code"`
	CardID     string    `bun:"card_id"`
	Craftable  bool      `bun:"craftable"`
}

func (r *collectionRepository) scanOwned(ctx context.Context, q *bun.SelectQuery) ([]*OwnedPrinting, error) {
	var rows []ownedRow
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list collection: %w", err)
	}
	out := make([]*OwnedPrinting, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		out = append(out, &OwnedPrinting{
			Copy: &models.CardCopy{
				UserID:     row.UserID,
				PrintingID: row.PrintingID,
				Owned:      row.Owned,
				Binder:     row.Binder,
				UpdatedAt:  row.UpdatedAt,
			},
			Printing: &models.Printing{
				ID:        row.PrintingID,
				Name:      row.Name,
				Rarity:    row.Rarity,
				SetName:   row.SetName,
				SetID:     row.SetID,
				Code:      row.Code,
				CardID:    row.CardID,
				Craftable: row.Craftable,
			},
		})
	}
	return out, nil
}

func (r *collectionRepository) baseQuery() *bun.SelectQuery {
	return r.db.NewSelect().
		Model((*models.CardCopy)(nil)).
		ColumnExpr("cc.*").
		ColumnExpr("p.name, p.rarity, p.set_name, p.set_id, p.code, p.card_id, p.craftable").
		Join("JOIN printings AS p ON p.id = cc.printing_id")
}

func (r *collectionRepository) ListByUser(ctx context.Context, userID string, excludeBinder bool) ([]*OwnedPrinting, error) {
	q := r.baseQuery().
		Where("cc.user_id = ?", userID).
		Where("cc.owned > 0").
		Order("p.set_name ASC", "p.name ASC")
	if excludeBinder {
		q = q.Where("cc.owned > cc.binder")
	}
	return r.scanOwned(ctx, q)
}

func (r *collectionRepository) ListByUserSetRarity(ctx context.Context, userID, setName, rarity string) ([]*OwnedPrinting, error) {
	q := r.baseQuery().
		Where("cc.user_id = ?", userID).
		Where("cc.owned > 0").
		Where("LOWER(p.set_name) = LOWER(?)", setName).
		Where("p.rarity = ?", rarity).
		Order("p.name ASC")
	return r.scanOwned(ctx, q)
}

func (r *collectionRepository) BinderHolders(ctx context.Context, printingID string) ([]*models.CardCopy, error) {
	var copies []*models.CardCopy
	err := r.db.NewSelect().
		Model(&copies).
		Where("printing_id = ?", printingID).
		Where("binder > 0").
		Order("user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list binder holders: %w", err)
	}
	return copies, nil
}

func (r *collectionRepository) AllCopies(ctx context.Context) ([]*models.CardCopy, error) {
	var copies []*models.CardCopy
	err := r.db.NewSelect().
		Model(&copies).
		Where("owned > 0").
		Order("user_id ASC", "printing_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list copies: %w", err)
	}
	return copies, nil
}
