// services/stats_service.go
package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/duelhall/mambot/mambot/database/repositories"
	"github.com/uptrace/bun"
)

// StatsService records duel outcomes with the same atomicity discipline as
// the ledger: a result row and both win/loss counters commit together, and
// RevertLast undoes exactly the most recent report.
type StatsService struct {
	db    *bun.DB
	stats repositories.StatsRepository
}

func NewStatsService(db *bun.DB, stats repositories.StatsRepository) *StatsService {
	return &StatsService{db: db, stats: stats}
}

func (s *StatsService) ReportResult(ctx context.Context, winnerID, loserID string) (*models.MatchResult, error) {
	if winnerID == loserID {
		return nil, fmt.Errorf("winner and loser must differ")
	}

	var result *models.MatchResult
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		result, err = s.stats.RecordResult(ctx, tx, winnerID, loserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Match recorded",
		slog.Int64("match_id", result.ID),
		slog.String("winner", winnerID),
		slog.String("loser", loserID))
	return result, nil
}

func (s *StatsService) RevertLast(ctx context.Context) (*models.MatchResult, error) {
	result, err := s.stats.RevertLatest(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Match reverted", slog.Int64("match_id", result.ID))
	return result, nil
}

func (s *StatsService) Stats(ctx context.Context, userID string) (*models.UserStats, error) {
	return s.stats.Stats(ctx, userID)
}

func (s *StatsService) Leaderboard(ctx context.Context, limit int) ([]*models.UserStats, error) {
	return s.stats.Leaderboard(ctx, limit)
}
