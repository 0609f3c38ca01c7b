package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/uptrace/bun"
)

var ErrTradeNotFound = errors.New("trade not found")

type TradeRepository interface {
	Create(ctx context.Context, trade *models.Trade) error
	GetByID(ctx context.Context, id int64) (*models.Trade, error)
	GetByIDIn(ctx context.Context, idb bun.IDB, id int64) (*models.Trade, error)
	// GetLatestActiveForUser resolves cancel-by-default: the caller's most
	// recent Open or Accepted trade.
	GetLatestActiveForUser(ctx context.Context, userID string) (*models.Trade, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Trade, error)
	// UpdateIfStatus persists trade only while its stored status still
	// matches expected, so racing transitions cannot stomp each other.
	// Returns false when another transition won.
	UpdateIfStatus(ctx context.Context, trade *models.Trade, expected models.TradeStatus) (bool, error)
	UpdateIfStatusIn(ctx context.Context, idb bun.IDB, trade *models.Trade, expected models.TradeStatus) (bool, error)
	// ExpireOlderThan flips non-terminal trades past their deadline to
	// Expired and returns how many were affected.
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type tradeRepository struct {
	db *bun.DB
}

func NewTradeRepository(db *bun.DB) TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	_, err := r.db.NewInsert().Model(trade).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (r *tradeRepository) GetByID(ctx context.Context, id int64) (*models.Trade, error) {
	return r.GetByIDIn(ctx, r.db, id)
}

func (r *tradeRepository) GetByIDIn(ctx context.Context, idb bun.IDB, id int64) (*models.Trade, error) {
	trade := new(models.Trade)
	err := idb.NewSelect().
		Model(trade).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

func (r *tradeRepository) GetLatestActiveForUser(ctx context.Context, userID string) (*models.Trade, error) {
	trade := new(models.Trade)
	err := r.db.NewSelect().
		Model(trade).
		Where("(initiator_id = ? OR counterparty_id = ?)", userID, userID).
		Where("status IN (?)", bun.In([]models.TradeStatus{models.TradeOpen, models.TradeAccepted})).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to get latest trade: %w", err)
	}
	return trade, nil
}

func (r *tradeRepository) ListForUser(ctx context.Context, userID string) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := r.db.NewSelect().
		Model(&trades).
		Where("initiator_id = ? OR counterparty_id = ?", userID, userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

func (r *tradeRepository) UpdateIfStatus(ctx context.Context, trade *models.Trade, expected models.TradeStatus) (bool, error) {
	return r.UpdateIfStatusIn(ctx, r.db, trade, expected)
}

func (r *tradeRepository) UpdateIfStatusIn(ctx context.Context, idb bun.IDB, trade *models.Trade, expected models.TradeStatus) (bool, error) {
	res, err := idb.NewUpdate().
		Model(trade).
		WherePK().
		Where("status = ?", expected).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to update trade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *tradeRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", models.TradeExpired).
		Set("updated_at = ?", cutoff).
		Where("status IN (?)", bun.In([]models.TradeStatus{models.TradeOpen, models.TradeAccepted})).
		Where("expires_at <= ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to expire trades: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
