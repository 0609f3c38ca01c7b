package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/uptrace/bun"
)

// Manager owns every balance and card-copy mutation. All writes go through a
// per-account mutex plus a database transaction, so concurrent adjustments to
// the same account never interleave and readers only ever see committed state.
type Manager struct {
	db    *bun.DB
	locks *accountLocks
}

func NewManager(db *bun.DB) *Manager {
	return &Manager{
		db:    db,
		locks: newAccountLocks(),
	}
}

func (m *Manager) DB() *bun.DB {
	return m.db
}

// WithAccounts locks the given accounts in a globally consistent order and
// runs fn inside a single transaction. Trade settlement and conversions use
// this to make their multi-step mutations indivisible.
func (m *Manager) WithAccounts(ctx context.Context, userIDs []string, fn func(ctx context.Context, tx bun.Tx) error) error {
	unlock := m.locks.lockAll(userIDs)
	defer unlock()

	return m.db.RunInTx(ctx, &sql.TxOptions{}, fn)
}

// EnsureAccount creates the account row on first interaction. Accounts are
// never deleted, only zeroed by an explicit reset.
func (m *Manager) EnsureAccount(ctx context.Context, idb bun.IDB, userID string) error {
	_, err := idb.NewInsert().
		Model(&models.Account{UserID: userID, CreatedAt: time.Now()}).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure account %s: %w", userID, err)
	}
	return nil
}

// AdjustCurrency applies delta to the account's balance of kind, failing with
// ErrInsufficientBalance before any write if the result would be negative.
// Returns the new balance.
func (m *Manager) AdjustCurrency(ctx context.Context, userID, kind string, delta int64, opID string) (int64, error) {
	var balance int64
	err := m.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		balance, err = m.AdjustCurrencyTx(ctx, tx, userID, kind, delta, opID)
		return err
	})
	return balance, err
}

// AdjustCurrencyTx is the in-transaction form for callers that already hold
// the account locks via WithAccounts.
func (m *Manager) AdjustCurrencyTx(ctx context.Context, idb bun.IDB, userID, kind string, delta int64, opID string) (int64, error) {
	return m.applyCurrency(ctx, idb, userID, kind, delta, opID, true)
}

func (m *Manager) applyCurrency(ctx context.Context, idb bun.IDB, userID, kind string, delta int64, opID string, journal bool) (int64, error) {
	if err := m.EnsureAccount(ctx, idb, userID); err != nil {
		return 0, err
	}

	bal := new(models.Balance)
	err := idb.NewSelect().
		Model(bal).
		Where("user_id = ? AND kind = ?", userID, kind).
		Scan(ctx)
	exists := true
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("failed to get balance: %w", err)
		}
		exists = false
		bal = &models.Balance{UserID: userID, Kind: kind}
	}

	next := bal.Amount + delta
	if next < 0 {
		return bal.Amount, fmt.Errorf("%w: %s has %d %s, needs %d", ErrInsufficientBalance, userID, bal.Amount, kind, -delta)
	}

	if exists {
		if _, err := idb.NewUpdate().
			Model((*models.Balance)(nil)).
			Set("amount = ?", next).
			Where("user_id = ? AND kind = ?", userID, kind).
			Exec(ctx); err != nil {
			return 0, fmt.Errorf("failed to update balance: %w", err)
		}
	} else {
		bal.Amount = next
		if _, err := idb.NewInsert().Model(bal).Exec(ctx); err != nil {
			return 0, fmt.Errorf("failed to insert balance: %w", err)
		}
	}

	if journal {
		if err := m.journal(ctx, idb, &models.LedgerEntry{
			UserID:      userID,
			Target:      kind,
			DeltaAmount: delta,
			OpID:        opID,
			CreatedAt:   time.Now(),
		}); err != nil {
			return 0, err
		}
	}
	return next, nil
}

// AdjustCopies applies delta to owned_count and binderDelta to binder_count
// for (userID, printingID). Fails closed: ErrInsufficientCopies if owned would
// go negative, ErrBinderInvariant if binder would go negative or exceed owned.
func (m *Manager) AdjustCopies(ctx context.Context, userID, printingID string, delta, binderDelta int64, opID string) error {
	return m.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		return m.AdjustCopiesTx(ctx, tx, userID, printingID, delta, binderDelta, opID)
	})
}

// AdjustCopiesTx is the in-transaction form of AdjustCopies.
func (m *Manager) AdjustCopiesTx(ctx context.Context, idb bun.IDB, userID, printingID string, delta, binderDelta int64, opID string) error {
	return m.applyCopies(ctx, idb, userID, printingID, delta, binderDelta, opID, true)
}

func (m *Manager) applyCopies(ctx context.Context, idb bun.IDB, userID, printingID string, delta, binderDelta int64, opID string, journal bool) error {
	if err := m.EnsureAccount(ctx, idb, userID); err != nil {
		return err
	}

	copyRow := new(models.CardCopy)
	err := idb.NewSelect().
		Model(copyRow).
		Where("user_id = ? AND printing_id = ?", userID, printingID).
		Scan(ctx)
	exists := true
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to get card copy: %w", err)
		}
		exists = false
		copyRow = &models.CardCopy{UserID: userID, PrintingID: printingID}
	}

	nextOwned := copyRow.Owned + delta
	nextBinder := copyRow.Binder + binderDelta
	if nextOwned < 0 {
		return fmt.Errorf("%w: %s owns %d of %s, needs %d", ErrInsufficientCopies, userID, copyRow.Owned, printingID, -delta)
	}
	if nextBinder < 0 || nextBinder > nextOwned {
		return fmt.Errorf("%w: owned %d, binder %d", ErrBinderInvariant, nextOwned, nextBinder)
	}

	switch {
	case nextOwned == 0 && exists:
		if _, err := idb.NewDelete().
			Model((*models.CardCopy)(nil)).
			Where("user_id = ? AND printing_id = ?", userID, printingID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete card copy: %w", err)
		}
	case exists:
		if _, err := idb.NewUpdate().
			Model((*models.CardCopy)(nil)).
			Set("owned = ?", nextOwned).
			Set("binder = ?", nextBinder).
			Set("updated_at = ?", time.Now()).
			Where("user_id = ? AND printing_id = ?", userID, printingID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to update card copy: %w", err)
		}
	case nextOwned > 0:
		copyRow.Owned = nextOwned
		copyRow.Binder = nextBinder
		copyRow.UpdatedAt = time.Now()
		if _, err := idb.NewInsert().Model(copyRow).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert card copy: %w", err)
		}
	}

	if journal {
		if err := m.journal(ctx, idb, &models.LedgerEntry{
			UserID:      userID,
			Target:      models.PrintingTarget(printingID),
			DeltaAmount: delta,
			DeltaBinder: binderDelta,
			OpID:        opID,
			CreatedAt:   time.Now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// BinderAdd marks up to n owned copies into the binder, capping at the owned
// count instead of erroring. Returns how many were actually added.
func (m *Manager) BinderAdd(ctx context.Context, userID, printingID string, n int64, opID string) (int64, error) {
	var added int64
	err := m.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		copyRow, err := m.copiesIn(ctx, tx, userID, printingID)
		if err != nil {
			return err
		}
		added = copyRow.Owned - copyRow.Binder
		if n < added {
			added = n
		}
		if added <= 0 {
			added = 0
			return nil
		}
		return m.AdjustCopiesTx(ctx, tx, userID, printingID, 0, added, opID)
	})
	return added, err
}

// BinderRemove unmarks up to n binder copies, flooring at zero.
func (m *Manager) BinderRemove(ctx context.Context, userID, printingID string, n int64, opID string) (int64, error) {
	var removed int64
	err := m.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		copyRow, err := m.copiesIn(ctx, tx, userID, printingID)
		if err != nil {
			return err
		}
		removed = copyRow.Binder
		if n < removed {
			removed = n
		}
		if removed <= 0 {
			removed = 0
			return nil
		}
		return m.AdjustCopiesTx(ctx, tx, userID, printingID, 0, -removed, opID)
	})
	return removed, err
}

// Balance returns the committed balance for (userID, kind); zero when the
// account or kind has never been touched.
func (m *Manager) Balance(ctx context.Context, userID, kind string) (int64, error) {
	bal := new(models.Balance)
	err := m.db.NewSelect().
		Model(bal).
		Where("user_id = ? AND kind = ?", userID, kind).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal.Amount, nil
}

// Copies returns the committed copy record; a zero-valued record when none.
func (m *Manager) Copies(ctx context.Context, userID, printingID string) (*models.CardCopy, error) {
	return m.copiesIn(ctx, m.db, userID, printingID)
}

// CopiesTx reads the copy record through an open transaction.
func (m *Manager) CopiesTx(ctx context.Context, idb bun.IDB, userID, printingID string) (*models.CardCopy, error) {
	return m.copiesIn(ctx, idb, userID, printingID)
}

// BalanceTx reads a balance through an open transaction.
func (m *Manager) BalanceTx(ctx context.Context, idb bun.IDB, userID, kind string) (int64, error) {
	bal := new(models.Balance)
	err := idb.NewSelect().
		Model(bal).
		Where("user_id = ? AND kind = ?", userID, kind).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal.Amount, nil
}

func (m *Manager) copiesIn(ctx context.Context, idb bun.IDB, userID, printingID string) (*models.CardCopy, error) {
	copyRow := new(models.CardCopy)
	err := idb.NewSelect().
		Model(copyRow).
		Where("user_id = ? AND printing_id = ?", userID, printingID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.CardCopy{UserID: userID, PrintingID: printingID}, nil
		}
		return nil, fmt.Errorf("failed to get card copy: %w", err)
	}
	return copyRow, nil
}

func (m *Manager) journal(ctx context.Context, idb bun.IDB, entry *models.LedgerEntry) error {
	_, err := idb.NewInsert().
		Model(entry).
		On("CONFLICT (user_id, target) DO UPDATE").
		Set("delta_amount = EXCLUDED.delta_amount").
		Set("delta_binder = EXCLUDED.delta_binder").
		Set("op_id = EXCLUDED.op_id").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to journal ledger effect: %w", err)
	}
	return nil
}

// LastEffect returns the most recent journaled effect for (userID, target).
func (m *Manager) LastEffect(ctx context.Context, userID, target string) (*models.LedgerEntry, error) {
	entry := new(models.LedgerEntry)
	err := m.db.NewSelect().
		Model(entry).
		Where("user_id = ? AND target = ?", userID, target).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNothingToRevert
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return entry, nil
}

// RevertLast undoes the most recent journaled effect on (userID, target) and
// consumes the journal entry. Only single-step undo is supported.
func (m *Manager) RevertLast(ctx context.Context, userID, target string) error {
	return m.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		entry := new(models.LedgerEntry)
		err := tx.NewSelect().
			Model(entry).
			Where("user_id = ? AND target = ?", userID, target).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNothingToRevert
			}
			return fmt.Errorf("failed to get ledger entry: %w", err)
		}

		if printingID, ok := cutPrintingTarget(entry.Target); ok {
			err = m.applyCopies(ctx, tx, userID, printingID, -entry.DeltaAmount, -entry.DeltaBinder, "revert:"+entry.OpID, false)
		} else {
			_, err = m.applyCurrency(ctx, tx, userID, entry.Target, -entry.DeltaAmount, "revert:"+entry.OpID, false)
		}
		if err != nil {
			return fmt.Errorf("failed to revert %s for %s: %w", target, userID, err)
		}

		if _, err := tx.NewDelete().
			Model((*models.LedgerEntry)(nil)).
			Where("user_id = ? AND target = ?", userID, target).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to consume ledger entry: %w", err)
		}

		slog.Info("Reverted ledger effect",
			slog.String("user_id", userID),
			slog.String("target", target),
			slog.String("op_id", entry.OpID))
		return nil
	})
}

func cutPrintingTarget(target string) (string, bool) {
	if len(target) > len(models.PrintingTargetPrefix) && target[:len(models.PrintingTargetPrefix)] == models.PrintingTargetPrefix {
		return target[len(models.PrintingTargetPrefix):], true
	}
	return "", false
}
