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

var ErrNoMatchResults = errors.New("no match results recorded")

type StatsRepository interface {
	RecordResult(ctx context.Context, idb bun.IDB, winnerID, loserID string) (*models.MatchResult, error)
	// RevertLatest undoes the most recent recorded match and its
	// win/loss counters.
	RevertLatest(ctx context.Context) (*models.MatchResult, error)
	Stats(ctx context.Context, userID string) (*models.UserStats, error)
	Leaderboard(ctx context.Context, limit int) ([]*models.UserStats, error)
}

type statsRepository struct {
	db *bun.DB
}

func NewStatsRepository(db *bun.DB) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) RecordResult(ctx context.Context, idb bun.IDB, winnerID, loserID string) (*models.MatchResult, error) {
	result := &models.MatchResult{
		WinnerID:  winnerID,
		LoserID:   loserID,
		CreatedAt: time.Now(),
	}
	if _, err := idb.NewInsert().Model(result).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to record match: %w", err)
	}

	if err := r.bumpStats(ctx, idb, winnerID, 1, 0); err != nil {
		return nil, err
	}
	if err := r.bumpStats(ctx, idb, loserID, 0, 1); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *statsRepository) bumpStats(ctx context.Context, idb bun.IDB, userID string, wins, losses int64) error {
	stats := &models.UserStats{UserID: userID, Wins: wins, Losses: losses}
	_, err := idb.NewInsert().
		Model(stats).
		On("CONFLICT (user_id) DO UPDATE").
		Set("wins = user_stats.wins + EXCLUDED.wins").
		Set("losses = user_stats.losses + EXCLUDED.losses").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}
	return nil
}

func (r *statsRepository) RevertLatest(ctx context.Context) (*models.MatchResult, error) {
	latest := new(models.MatchResult)
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(latest).
			Order("id DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoMatchResults
			}
			return fmt.Errorf("failed to get latest match: %w", err)
		}

		if err := r.bumpStats(ctx, tx, latest.WinnerID, -1, 0); err != nil {
			return err
		}
		if err := r.bumpStats(ctx, tx, latest.LoserID, 0, -1); err != nil {
			return err
		}

		if _, err := tx.NewDelete().Model(latest).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete match: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func (r *statsRepository) Stats(ctx context.Context, userID string) (*models.UserStats, error) {
	stats := new(models.UserStats)
	err := r.db.NewSelect().
		Model(stats).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UserStats{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func (r *statsRepository) Leaderboard(ctx context.Context, limit int) ([]*models.UserStats, error) {
	var rows []*models.UserStats
	err := r.db.NewSelect().
		Model(&rows).
		Order("wins DESC", "losses ASC", "user_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	return rows, nil
}
