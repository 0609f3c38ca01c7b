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

type QuestRepository interface {
	Progress(ctx context.Context, userID, questID string) (*models.QuestProgress, error)
	ListByUser(ctx context.Context, userID string) ([]*models.QuestProgress, error)
	// Advance bumps progress by delta, creating the row at delta when missing.
	Advance(ctx context.Context, idb bun.IDB, userID, questID string, delta int64) error
	MarkClaimed(ctx context.Context, idb bun.IDB, userID, questID string) error
	// ResetDaily wipes all progress rows at the rollover boundary.
	ResetDaily(ctx context.Context, idb bun.IDB) (int64, error)
	ResetUser(ctx context.Context, userID string) error
}

type questRepository struct {
	db *bun.DB
}

func NewQuestRepository(db *bun.DB) QuestRepository {
	return &questRepository{db: db}
}

func (r *questRepository) Progress(ctx context.Context, userID, questID string) (*models.QuestProgress, error) {
	progress := new(models.QuestProgress)
	err := r.db.NewSelect().
		Model(progress).
		Where("user_id = ? AND quest_id = ?", userID, questID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.QuestProgress{UserID: userID, QuestID: questID}, nil
		}
		return nil, fmt.Errorf("failed to get quest progress: %w", err)
	}
	return progress, nil
}

func (r *questRepository) ListByUser(ctx context.Context, userID string) ([]*models.QuestProgress, error) {
	var rows []*models.QuestProgress
	err := r.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("quest_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list quest progress: %w", err)
	}
	return rows, nil
}

func (r *questRepository) Advance(ctx context.Context, idb bun.IDB, userID, questID string, delta int64) error {
	row := &models.QuestProgress{
		UserID:    userID,
		QuestID:   questID,
		Progress:  delta,
		UpdatedAt: time.Now(),
	}
	_, err := idb.NewInsert().
		Model(row).
		On("CONFLICT (user_id, quest_id) DO UPDATE").
		Set("progress = quest_progress.progress + EXCLUDED.progress").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to advance quest: %w", err)
	}
	return nil
}

func (r *questRepository) MarkClaimed(ctx context.Context, idb bun.IDB, userID, questID string) error {
	_, err := idb.NewUpdate().
		Model((*models.QuestProgress)(nil)).
		Set("claimed = ?", true).
		Set("updated_at = ?", time.Now()).
		Where("user_id = ? AND quest_id = ?", userID, questID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark quest claimed: %w", err)
	}
	return nil
}

func (r *questRepository) ResetDaily(ctx context.Context, idb bun.IDB) (int64, error) {
	res, err := idb.NewDelete().
		Model((*models.QuestProgress)(nil)).
		Where("1 = 1").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset quests: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (r *questRepository) ResetUser(ctx context.Context, userID string) error {
	_, err := r.db.NewDelete().
		Model((*models.QuestProgress)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset user quests: %w", err)
	}
	return nil
}
