package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duelhall/mambot/mambot/database"
	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/duelhall/mambot/mambot/database/repositories"
	"github.com/duelhall/mambot/mambot/economy/conversion"
	"github.com/duelhall/mambot/mambot/economy/ledger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type schedulerEnv struct {
	db        *database.DB
	clock     *fakeClock
	boundary  *Boundary
	ledger    *ledger.Manager
	accounts  repositories.AccountRepository
	rollovers repositories.RolloverRepository
	printings repositories.PrintingRepository
}

func newSchedulerEnv(t *testing.T) *schedulerEnv {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.InitializeSchema(ctx))

	boundary, err := NewBoundary("UTC", "00:00")
	require.NoError(t, err)

	bunDB := db.BunDB()
	return &schedulerEnv{
		db:        db,
		clock:     &fakeClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)},
		boundary:  boundary,
		ledger:    ledger.NewManager(bunDB),
		accounts:  repositories.NewAccountRepository(bunDB),
		rollovers: repositories.NewRolloverRepository(bunDB),
		printings: repositories.NewPrintingRepository(bunDB),
	}
}

func (env *schedulerEnv) seedAccounts(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, env.ledger.EnsureAccount(context.Background(), env.db.BunDB(), id))
	}
}

func (env *schedulerEnv) newScheduler(jobs ...Job) *Scheduler {
	return New(env.boundary, env.clock, env.rollovers, jobs...)
}

func (env *schedulerEnv) grantJobs(mambucks, chips int64) []Job {
	return []Job{
		NewDailyGrantJob(env.ledger, env.accounts, env.rollovers, mambucks),
		NewChipGrantJob(env.ledger, env.accounts, env.rollovers, chips),
	}
}

func (env *schedulerEnv) balance(t *testing.T, userID, kind string) int64 {
	t.Helper()
	balance, err := env.ledger.Balance(context.Background(), userID, kind)
	require.NoError(t, err)
	return balance
}

func TestRolloverGrantsOncePerDay(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()
	env.seedAccounts(t, "alice", "bob")
	s := env.newScheduler(env.grantJobs(100, 5)...)

	require.NoError(t, s.CheckAndRun(ctx))

	for _, id := range []string{"alice", "bob"} {
		require.Equal(t, int64(100), env.balance(t, id, models.KindMambucks))
		require.Equal(t, int64(5), env.balance(t, id, models.KindChips))
	}
	total, err := env.rollovers.RunningTotal(ctx, TotalDailyMambucks)
	require.NoError(t, err)
	require.Equal(t, int64(200), total)

	// Same day again: nothing due, nothing granted twice.
	require.NoError(t, s.CheckAndRun(ctx))
	require.Equal(t, int64(100), env.balance(t, "alice", models.KindMambucks))

	// Next day pays out again.
	env.clock.Advance(24 * time.Hour)
	require.NoError(t, s.CheckAndRun(ctx))
	require.Equal(t, int64(200), env.balance(t, "alice", models.KindMambucks))
	require.Equal(t, int64(10), env.balance(t, "bob", models.KindChips))
}

func TestSimulateNextDay(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()
	env.seedAccounts(t, "alice")
	s := env.newScheduler(env.grantJobs(100, 0)...)

	require.NoError(t, s.CheckAndRun(ctx))
	require.Equal(t, int64(100), env.balance(t, "alice", models.KindMambucks))

	require.NoError(t, s.SimulateNextDay(ctx))
	require.NoError(t, s.CheckAndRun(ctx))
	require.Equal(t, int64(200), env.balance(t, "alice", models.KindMambucks))

	// The simulate flag clears with the boundary advance.
	state, err := env.rollovers.State(ctx)
	require.NoError(t, err)
	require.False(t, state.SimulateNextDay)
	require.Equal(t, "20250616", state.LastProcessedDay)

	// The real clock reaching the simulated day finds it already processed.
	env.clock.Advance(24 * time.Hour)
	require.NoError(t, s.CheckAndRun(ctx))
	require.Equal(t, int64(200), env.balance(t, "alice", models.KindMambucks))
}

func TestTickAfterSimulatedRolloverIsNoOp(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()

	job := &stubJob{name: "marker"}
	s := env.newScheduler(job)

	require.NoError(t, s.CheckAndRun(ctx))
	require.NoError(t, s.SimulateNextDay(ctx))
	require.NoError(t, s.CheckAndRun(ctx))

	// The boundary now sits one day ahead of the clock. Ticks until the real
	// clock catches up must not rerun the day or move the boundary back.
	require.NoError(t, s.CheckAndRun(ctx))
	env.clock.Advance(24 * time.Hour)
	require.NoError(t, s.CheckAndRun(ctx))
	require.Equal(t, []string{"20250615", "20250616"}, job.runs)

	state, err := env.rollovers.State(ctx)
	require.NoError(t, err)
	require.Equal(t, "20250616", state.LastProcessedDay)

	// The day after the simulated one fires normally.
	env.clock.Advance(24 * time.Hour)
	require.NoError(t, s.CheckAndRun(ctx))
	require.Equal(t, []string{"20250615", "20250616", "20250617"}, job.runs)
}

func TestResetSimulatedDay(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()
	env.seedAccounts(t, "alice")
	s := env.newScheduler(env.grantJobs(100, 0)...)

	require.NoError(t, s.CheckAndRun(ctx))
	require.NoError(t, s.SimulateNextDay(ctx))
	require.NoError(t, s.ResetSimulatedDay(ctx))

	require.NoError(t, s.CheckAndRun(ctx))
	require.Equal(t, int64(100), env.balance(t, "alice", models.KindMambucks))
}

type stubJob struct {
	name string
	err  error
	runs []string
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run(_ context.Context, dayKey string) error {
	j.runs = append(j.runs, dayKey)
	return j.err
}

func TestPartialFailureResumesWithoutRepeating(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()
	env.seedAccounts(t, "alice")

	grant := NewDailyGrantJob(env.ledger, env.accounts, env.rollovers, 100)
	broken := &stubJob{name: "cleanup", err: errors.New("disk full")}

	s := env.newScheduler(grant, broken)
	require.Error(t, s.CheckAndRun(ctx))

	// The grant landed and its marker stuck; the boundary did not advance.
	require.Equal(t, int64(100), env.balance(t, "alice", models.KindMambucks))
	runs, err := env.rollovers.JobRuns(ctx)
	require.NoError(t, err)
	require.Equal(t, "20250615", runs[JobDailyGrant])
	state, err := env.rollovers.State(ctx)
	require.NoError(t, err)
	require.Empty(t, state.LastProcessedDay)

	// The next tick skips the completed grant and finishes the day.
	broken.err = nil
	require.NoError(t, s.CheckAndRun(ctx))
	require.Equal(t, int64(100), env.balance(t, "alice", models.KindMambucks))
	require.Equal(t, []string{"20250615", "20250615"}, broken.runs)

	state, err = env.rollovers.State(ctx)
	require.NoError(t, err)
	require.Equal(t, "20250615", state.LastProcessedDay)
}

type blockingJob struct {
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(context.Context, string) error {
	close(j.started)
	<-j.release
	return nil
}

func TestConcurrentCheckAndRunFailsFast(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()

	job := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
	s := env.newScheduler(job)

	done := make(chan error, 1)
	go func() { done <- s.CheckAndRun(ctx) }()

	<-job.started
	require.ErrorIs(t, s.CheckAndRun(ctx), ErrRolloverAlreadyRunning)

	status, err := s.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.Running)
	require.Equal(t, "blocking", status.CurrentJob)

	close(job.release)
	require.NoError(t, <-done)
}

func TestSaleRerollPicksOnePerRarity(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()

	require.NoError(t, env.printings.UpsertAll(ctx, []*models.Printing{
		{ID: "c1", Name: "Mole Dragon", Rarity: models.RarityCommon, SetName: "Elemental", SetID: 1, Craftable: true},
		{ID: "c2", Name: "Pebble Imp", Rarity: models.RarityCommon, SetName: "Elemental", SetID: 1, Craftable: true},
		{ID: "s1", Name: "Void Matriarch", Rarity: models.RaritySecret, SetName: "Elemental", SetID: 1, Craftable: true},
		{ID: "x1", Name: "Dawn Herald", Rarity: models.RarityStarlight, SetName: "Astral", SetID: 2, Craftable: false},
	}))

	job := NewSaleRerollJob(env.printings, env.rollovers, nil, 25)
	require.NoError(t, job.Run(ctx, "20250615"))

	sales, err := env.rollovers.SalesForDay(ctx, "20250615")
	require.NoError(t, err)
	require.Len(t, sales, 2)

	byRarity := make(map[string]*models.DailySale, len(sales))
	for _, sale := range sales {
		byRarity[sale.Rarity] = sale
	}
	require.Contains(t, []string{"c1", "c2"}, byRarity[models.RarityCommon].PrintingID)
	require.Equal(t, conversion.SalePrice(5, 25), byRarity[models.RarityCommon].PriceShards)
	require.Equal(t, "s1", byRarity[models.RaritySecret].PrintingID)
	require.Equal(t, conversion.SalePrice(100, 25), byRarity[models.RaritySecret].PriceShards)
	require.NotContains(t, byRarity, models.RarityStarlight)

	// Rerolling replaces the day's sales instead of stacking them.
	require.NoError(t, job.Run(ctx, "20250615"))
	sales, err = env.rollovers.SalesForDay(ctx, "20250615")
	require.NoError(t, err)
	require.Len(t, sales, 2)
}
