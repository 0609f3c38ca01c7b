package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/uptrace/bun"
)

type RolloverRepository interface {
	// State returns the singleton rollover state, creating it when missing.
	State(ctx context.Context) (*models.RolloverState, error)
	SetSimulateNextDay(ctx context.Context, simulate bool) error

	JobRuns(ctx context.Context) (map[string]string, error)
	SetJobRun(ctx context.Context, name, dayKey string) error

	// AdvanceBoundary commits the processed day, clears per-job markers
	// and the simulate flag in one transaction.
	AdvanceBoundary(ctx context.Context, dayKey string) error

	// TryInsertGrant records a per-user grant for the day. Returns false
	// when the grant was already recorded.
	TryInsertGrant(ctx context.Context, idb bun.IDB, job, userID, dayKey string) (bool, error)

	IncrementRunningTotal(ctx context.Context, idb bun.IDB, name string, delta int64) error
	RunningTotal(ctx context.Context, name string) (int64, error)

	SetSales(ctx context.Context, dayKey string, sales []*models.DailySale) error
	SalesForDay(ctx context.Context, dayKey string) ([]*models.DailySale, error)
}

type rolloverRepository struct {
	db *bun.DB
}

func NewRolloverRepository(db *bun.DB) RolloverRepository {
	return &rolloverRepository{db: db}
}

func (r *rolloverRepository) State(ctx context.Context) (*models.RolloverState, error) {
	state := new(models.RolloverState)
	err := r.db.NewSelect().
		Model(state).
		Where("id = 1").
		Scan(ctx)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get rollover state: %w", err)
	}

	state = &models.RolloverState{ID: 1}
	_, err = r.db.NewInsert().
		Model(state).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init rollover state: %w", err)
	}
	return state, nil
}

func (r *rolloverRepository) SetSimulateNextDay(ctx context.Context, simulate bool) error {
	if _, err := r.State(ctx); err != nil {
		return err
	}
	_, err := r.db.NewUpdate().
		Model((*models.RolloverState)(nil)).
		Set("simulate_next_day = ?", simulate).
		Where("id = 1").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set simulate flag: %w", err)
	}
	return nil
}

func (r *rolloverRepository) JobRuns(ctx context.Context) (map[string]string, error) {
	var runs []*models.RolloverJobRun
	if err := r.db.NewSelect().Model(&runs).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	out := make(map[string]string, len(runs))
	for _, run := range runs {
		out[run.Name] = run.LastRunDay
	}
	return out, nil
}

func (r *rolloverRepository) SetJobRun(ctx context.Context, name, dayKey string) error {
	run := &models.RolloverJobRun{Name: name, LastRunDay: dayKey}
	_, err := r.db.NewInsert().
		Model(run).
		On("CONFLICT (name) DO UPDATE").
		Set("last_run_day = EXCLUDED.last_run_day").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record job run: %w", err)
	}
	return nil
}

func (r *rolloverRepository) AdvanceBoundary(ctx context.Context, dayKey string) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.RolloverState)(nil)).
			Set("last_processed_day = ?", dayKey).
			Set("simulate_next_day = ?", false).
			Where("id = 1").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to advance boundary: %w", err)
		}

		_, err = tx.NewDelete().
			Model((*models.RolloverJobRun)(nil)).
			Where("1 = 1").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear job markers: %w", err)
		}
		return nil
	})
}

func (r *rolloverRepository) TryInsertGrant(ctx context.Context, idb bun.IDB, job, userID, dayKey string) (bool, error) {
	grant := &models.RolloverGrant{Job: job, UserID: userID, DayKey: dayKey}
	res, err := idb.NewInsert().
		Model(grant).
		On("CONFLICT (job, user_id, day_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to record grant: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *rolloverRepository) IncrementRunningTotal(ctx context.Context, idb bun.IDB, name string, delta int64) error {
	total := &models.RunningTotal{Name: name, Total: delta}
	_, err := idb.NewInsert().
		Model(total).
		On("CONFLICT (name) DO UPDATE").
		Set("total = rt.total + EXCLUDED.total").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment running total: %w", err)
	}
	return nil
}

func (r *rolloverRepository) RunningTotal(ctx context.Context, name string) (int64, error) {
	total := new(models.RunningTotal)
	err := r.db.NewSelect().
		Model(total).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get running total: %w", err)
	}
	return total.Total, nil
}

func (r *rolloverRepository) SetSales(ctx context.Context, dayKey string, sales []*models.DailySale) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.DailySale)(nil)).
			Where("day_key = ?", dayKey).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear sales: %w", err)
		}
		if len(sales) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&sales).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert sales: %w", err)
		}
		return nil
	})
}

func (r *rolloverRepository) SalesForDay(ctx context.Context, dayKey string) ([]*models.DailySale, error) {
	var sales []*models.DailySale
	err := r.db.NewSelect().
		Model(&sales).
		Where("day_key = ?", dayKey).
		Order("rarity ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}
