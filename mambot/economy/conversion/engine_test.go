package conversion

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duelhall/mambot/mambot/database"
	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/duelhall/mambot/mambot/database/repositories"
	"github.com/duelhall/mambot/mambot/economy/ledger"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	engine    *Engine
	ledger    *ledger.Manager
	printings repositories.PrintingRepository
	rollovers repositories.RolloverRepository
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.InitializeSchema(ctx))

	bunDB := db.BunDB()
	ledgerMgr := ledger.NewManager(bunDB)
	printings := repositories.NewPrintingRepository(bunDB)
	rollovers := repositories.NewRolloverRepository(bunDB)

	require.NoError(t, printings.UpsertAll(ctx, []*models.Printing{
		{ID: "p-common", Name: "Mole Dragon", Rarity: models.RarityCommon, SetName: "Elemental", SetID: 1, Craftable: true},
		{ID: "p-common-2", Name: "Pebble Imp", Rarity: models.RarityCommon, SetName: "Elemental", SetID: 1, Craftable: true},
		{ID: "p-secret", Name: "Void Matriarch", Rarity: models.RaritySecret, SetName: "Elemental", SetID: 1, Craftable: true},
		{ID: "p-star", Name: "Dawn Herald", Rarity: models.RarityStarlight, SetName: "Astral", SetID: 2, Craftable: false},
	}))

	if cfg.Now == nil {
		cfg.Now = func() time.Time { return testNow }
	}
	engine := NewEngine(
		ledgerMgr,
		printings,
		repositories.NewOverrideRepository(bunDB),
		rollovers,
		repositories.NewCollectionRepository(bunDB),
		cfg,
	)
	return &testEnv{engine: engine, ledger: ledgerMgr, printings: printings, rollovers: rollovers}
}

func (env *testEnv) giveShards(t *testing.T, userID string, setID int, amount int64) {
	t.Helper()
	_, err := env.ledger.AdjustCurrency(context.Background(), userID, models.ShardKind(setID), amount, "test-grant")
	require.NoError(t, err)
}

func (env *testEnv) shards(t *testing.T, userID string, setID int) int64 {
	t.Helper()
	balance, err := env.ledger.Balance(context.Background(), userID, models.ShardKind(setID))
	require.NoError(t, err)
	return balance
}

func TestCraftAndFragmentRoundTripEqualRates(t *testing.T) {
	env := newTestEnv(t, Config{
		Rates: &Rates{
			CraftCost:  map[string]int64{models.RarityCommon: 5},
			ShardYield: map[string]int64{models.RarityCommon: 5},
		},
	})
	ctx := context.Background()
	env.giveShards(t, "u1", 1, 50)

	spent, err := env.engine.Craft(ctx, "u1", "p-common", 2)
	require.NoError(t, err)
	require.Equal(t, int64(10), spent)
	require.Equal(t, int64(40), env.shards(t, "u1", 1))

	yield, err := env.engine.Fragment(ctx, "u1", "p-common", 2)
	require.NoError(t, err)
	require.Equal(t, int64(10), yield)
	require.Equal(t, int64(50), env.shards(t, "u1", 1))

	copies, err := env.ledger.Copies(ctx, "u1", "p-common")
	require.NoError(t, err)
	require.Equal(t, int64(0), copies.Owned)
}

func TestCraftAndFragmentRoundTripDefaultRates(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	env.giveShards(t, "u1", 1, 100)

	_, err := env.engine.Craft(ctx, "u1", "p-common", 1)
	require.NoError(t, err)
	_, err = env.engine.Fragment(ctx, "u1", "p-common", 1)
	require.NoError(t, err)

	// Crafting costs 5 and fragmenting yields 2: the spread is burned.
	require.Equal(t, int64(97), env.shards(t, "u1", 1))
}

func TestCraftInsufficientShards(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	env.giveShards(t, "u1", 1, 99)

	_, err := env.engine.Craft(ctx, "u1", "p-secret", 1)
	require.ErrorIs(t, err, ErrInsufficientShards)
	require.Equal(t, int64(99), env.shards(t, "u1", 1))
}

func TestStarlightIsClosedBothWays(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	env.giveShards(t, "u1", 2, 1000)

	_, err := env.engine.Craft(ctx, "u1", "p-star", 1)
	require.ErrorIs(t, err, ErrUncraftable)

	require.NoError(t, env.ledger.AdjustCopies(ctx, "u1", "p-star", 1, 0, "test-grant"))
	_, err = env.engine.Fragment(ctx, "u1", "p-star", 1)
	require.ErrorIs(t, err, ErrUnfragmentable)
}

func TestFragmentRespectsBinder(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.ledger.AdjustCopies(ctx, "u1", "p-common", 3, 2, "test-grant"))

	_, err := env.engine.Fragment(ctx, "u1", "p-common", 2)
	require.ErrorIs(t, err, ledger.ErrInsufficientCopies)

	_, err = env.engine.Fragment(ctx, "u1", "p-common", 1)
	require.NoError(t, err)
}

func TestOverridePrecedence(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	printing, err := env.printings.GetByID(ctx, "p-common")
	require.NoError(t, err)

	// Card-level override applies to all printings of the name.
	require.NoError(t, env.engine.SetOverride(ctx, &models.ConversionOverride{
		CardName:   "Mole Dragon",
		CraftCost:  3,
		ShardYield: 1,
		Reason:     "event pricing",
	}))
	rule, err := env.engine.EffectiveRule(ctx, printing)
	require.NoError(t, err)
	require.Equal(t, int64(3), rule.CraftCost)
	require.Equal(t, "override:card", rule.Source)

	// A printing-specific override wins over the card-level one.
	require.NoError(t, env.engine.SetOverride(ctx, &models.ConversionOverride{
		PrintingID: "p-common",
		CraftCost:  2,
		ShardYield: 1,
		Reason:     "hotfix",
	}))
	rule, err = env.engine.EffectiveRule(ctx, printing)
	require.NoError(t, err)
	require.Equal(t, int64(2), rule.CraftCost)
	require.Equal(t, "override:printing", rule.Source)

	// Clearing the printing override falls back to the card-level one.
	require.NoError(t, env.engine.ClearOverride(ctx, "p-common", "", ""))
	rule, err = env.engine.EffectiveRule(ctx, printing)
	require.NoError(t, err)
	require.Equal(t, "override:card", rule.Source)

	require.NoError(t, env.engine.ClearOverride(ctx, "", "Mole Dragon", "Elemental"))
	rule, err = env.engine.EffectiveRule(ctx, printing)
	require.NoError(t, err)
	require.Equal(t, "base", rule.Source)

	err = env.engine.ClearOverride(ctx, "", "Mole Dragon", "Elemental")
	require.ErrorIs(t, err, ErrUnknownOverrideTarget)
}

func TestExpiredOverrideIgnored(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.engine.SetOverride(ctx, &models.ConversionOverride{
		PrintingID: "p-common",
		CraftCost:  1,
		ShardYield: 1,
		Reason:     "flash sale",
		ExpiresAt:  testNow.Add(-time.Hour),
	}))

	printing, err := env.printings.GetByID(ctx, "p-common")
	require.NoError(t, err)
	rule, err := env.engine.EffectiveRule(ctx, printing)
	require.NoError(t, err)
	require.Equal(t, "base", rule.Source)
	require.Equal(t, int64(5), rule.CraftCost)
}

func TestSaleAffectsCraftCostOnly(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	dayKey := testNow.UTC().Format("20060102")
	require.NoError(t, env.rollovers.SetSales(ctx, dayKey, []*models.DailySale{
		{DayKey: dayKey, Rarity: models.RarityCommon, PrintingID: "p-common", PriceShards: 4},
	}))

	printing, err := env.printings.GetByID(ctx, "p-common")
	require.NoError(t, err)
	rule, err := env.engine.EffectiveRule(ctx, printing)
	require.NoError(t, err)
	require.Equal(t, int64(4), rule.CraftCost)
	require.Equal(t, int64(2), rule.ShardYield)
	require.Equal(t, "sale", rule.Source)

	// The sale names one printing; siblings keep the base price.
	other, err := env.printings.GetByID(ctx, "p-common-2")
	require.NoError(t, err)
	rule, err = env.engine.EffectiveRule(ctx, other)
	require.NoError(t, err)
	require.Equal(t, int64(5), rule.CraftCost)
	require.Equal(t, "base", rule.Source)
}

func TestFragmentBulkKeepArithmetic(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.ledger.AdjustCopies(ctx, "u1", "p-common", 7, 1, "test-grant"))
	require.NoError(t, env.ledger.AdjustCopies(ctx, "u1", "p-common-2", 2, 0, "test-grant"))

	results, err := env.engine.FragmentBulk(ctx, "u1", "Elemental", "common", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Equal(t, "p-common", results[0].Printing.ID)
	// 7 owned - 1 binder - 3 keep = 3 fragmented at yield 2.
	require.Equal(t, int64(3), results[0].Fragmented)
	require.Equal(t, int64(6), results[0].Shards)

	copies, err := env.ledger.Copies(ctx, "u1", "p-common")
	require.NoError(t, err)
	require.Equal(t, int64(4), copies.Owned)
	require.Equal(t, int64(1), copies.Binder)

	// The printing at or below keep is untouched.
	copies, err = env.ledger.Copies(ctx, "u1", "p-common-2")
	require.NoError(t, err)
	require.Equal(t, int64(2), copies.Owned)
}

func TestShardExchange(t *testing.T) {
	env := newTestEnv(t, Config{Exchange: ExchangeRate{From: 2, To: 1}})
	ctx := context.Background()
	env.giveShards(t, "u1", 1, 10)

	credited, err := env.engine.ShardExchange(ctx, "u1", 1, 2, 10)
	require.NoError(t, err)
	require.Equal(t, int64(5), credited)
	require.Equal(t, int64(0), env.shards(t, "u1", 1))
	require.Equal(t, int64(5), env.shards(t, "u1", 2))

	_, err = env.engine.ShardExchange(ctx, "u1", 2, 1, 3)
	require.ErrorIs(t, err, ErrInvalidExchange)

	_, err = env.engine.ShardExchange(ctx, "u1", 1, 2, 2)
	require.ErrorIs(t, err, ErrInsufficientShards)

	_, err = env.engine.ShardExchange(ctx, "u1", 1, 1, 2)
	require.ErrorIs(t, err, ErrInvalidExchange)
}

func TestParseExchangeRate(t *testing.T) {
	rate, err := ParseExchangeRate("3:2")
	require.NoError(t, err)
	require.Equal(t, ExchangeRate{From: 3, To: 2}, rate)

	_, err = ParseExchangeRate("bogus")
	require.Error(t, err)

	rate, err = ParseExchangeRate("0:-1")
	require.NoError(t, err)
	require.Equal(t, ExchangeRate{From: 1, To: 1}, rate)
}
