package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duelhall/mambot/mambot/database"
	"github.com/duelhall/mambot/mambot/database/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.InitializeSchema(ctx))
	return NewManager(db.BunDB())
}

func TestAdjustCurrency(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	balance, err := m.AdjustCurrency(ctx, "u1", models.KindMambucks, 100, "test")
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)

	balance, err = m.AdjustCurrency(ctx, "u1", models.KindMambucks, -30, "test")
	require.NoError(t, err)
	require.Equal(t, int64(70), balance)

	_, err = m.AdjustCurrency(ctx, "u1", models.KindMambucks, -71, "test")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// The failed adjustment must not have touched the balance.
	balance, err = m.Balance(ctx, "u1", models.KindMambucks)
	require.NoError(t, err)
	require.Equal(t, int64(70), balance)
}

func TestBalanceKindsAreIndependent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AdjustCurrency(ctx, "u1", models.KindMambucks, 10, "test")
	require.NoError(t, err)
	_, err = m.AdjustCurrency(ctx, "u1", models.ShardKind(1), 5, "test")
	require.NoError(t, err)

	chips, err := m.Balance(ctx, "u1", models.KindChips)
	require.NoError(t, err)
	require.Equal(t, int64(0), chips)

	shards, err := m.Balance(ctx, "u1", models.ShardKind(1))
	require.NoError(t, err)
	require.Equal(t, int64(5), shards)
}

func TestAdjustCopies(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AdjustCopies(ctx, "u1", "p1", 3, 0, "test"))

	copies, err := m.Copies(ctx, "u1", "p1")
	require.NoError(t, err)
	require.Equal(t, int64(3), copies.Owned)

	err = m.AdjustCopies(ctx, "u1", "p1", -4, 0, "test")
	require.ErrorIs(t, err, ErrInsufficientCopies)

	// Removing all copies removes the row entirely.
	require.NoError(t, m.AdjustCopies(ctx, "u1", "p1", -3, 0, "test"))
	copies, err = m.Copies(ctx, "u1", "p1")
	require.NoError(t, err)
	require.Equal(t, int64(0), copies.Owned)
}

func TestBinderInvariant(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AdjustCopies(ctx, "u1", "p1", 2, 0, "test"))

	err := m.AdjustCopies(ctx, "u1", "p1", 0, 3, "test")
	require.ErrorIs(t, err, ErrBinderInvariant)

	err = m.AdjustCopies(ctx, "u1", "p1", 0, -1, "test")
	require.ErrorIs(t, err, ErrBinderInvariant)

	require.NoError(t, m.AdjustCopies(ctx, "u1", "p1", 0, 2, "test"))

	// Owned cannot drop below binder.
	err = m.AdjustCopies(ctx, "u1", "p1", -1, 0, "test")
	require.ErrorIs(t, err, ErrBinderInvariant)
}

func TestBinderAddCapsAtOwned(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AdjustCopies(ctx, "u1", "p1", 3, 0, "test"))

	added, err := m.BinderAdd(ctx, "u1", "p1", 10, "test")
	require.NoError(t, err)
	require.Equal(t, int64(3), added)

	added, err = m.BinderAdd(ctx, "u1", "p1", 1, "test")
	require.NoError(t, err)
	require.Equal(t, int64(0), added)

	removed, err := m.BinderRemove(ctx, "u1", "p1", 99, "test")
	require.NoError(t, err)
	require.Equal(t, int64(3), removed)
}

func TestRevertLast(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AdjustCurrency(ctx, "u1", models.KindMambucks, 100, "grant")
	require.NoError(t, err)
	_, err = m.AdjustCurrency(ctx, "u1", models.KindMambucks, -40, "purchase")
	require.NoError(t, err)

	entry, err := m.LastEffect(ctx, "u1", models.KindMambucks)
	require.NoError(t, err)
	require.Equal(t, int64(-40), entry.DeltaAmount)
	require.Equal(t, "purchase", entry.OpID)

	require.NoError(t, m.RevertLast(ctx, "u1", models.KindMambucks))

	balance, err := m.Balance(ctx, "u1", models.KindMambucks)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)

	// The journal entry is consumed: only single-step undo.
	err = m.RevertLast(ctx, "u1", models.KindMambucks)
	require.ErrorIs(t, err, ErrNothingToRevert)
}

func TestRevertLastCopies(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AdjustCopies(ctx, "u1", "p1", 5, 0, "grant"))
	require.NoError(t, m.AdjustCopies(ctx, "u1", "p1", -2, 0, "fragment"))

	require.NoError(t, m.RevertLast(ctx, "u1", models.PrintingTarget("p1")))

	copies, err := m.Copies(ctx, "u1", "p1")
	require.NoError(t, err)
	require.Equal(t, int64(5), copies.Owned)
}

func TestConcurrentAdjustmentsDoNotLoseUpdates(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	const workers = 10
	const perWorker = 20

	errs := make(chan error, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := m.AdjustCurrency(ctx, "u1", models.KindChips, 1, "test")
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	balance, err := m.Balance(ctx, "u1", models.KindChips)
	require.NoError(t, err)
	require.Equal(t, int64(workers*perWorker), balance)
}
