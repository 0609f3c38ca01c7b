package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/duelhall/mambot/mambot/database/repositories"
	"github.com/duelhall/mambot/mambot/economy/ledger"
	"github.com/uptrace/bun"
)

// Config tunes the engine. Zero values fall back to DefaultRates, a 2:1
// exchange, 25% sales and keep-0 bulk fragmenting.
type Config struct {
	Rates           *Rates
	Exchange        ExchangeRate
	SaleDiscountPct int64
	BulkKeepDefault int64

	Now    func() time.Time
	DayKey func(time.Time) string
}

// Engine turns shards into card copies and back. Rule resolution order:
// printing-specific override, card-level override, today's sale (craft cost
// only), static per-rarity table.
type Engine struct {
	ledger      *ledger.Manager
	printings   repositories.PrintingRepository
	overrides   repositories.OverrideRepository
	rollovers   repositories.RolloverRepository
	collections repositories.CollectionRepository
	cfg         Config
}

func NewEngine(
	ledgerMgr *ledger.Manager,
	printings repositories.PrintingRepository,
	overrides repositories.OverrideRepository,
	rollovers repositories.RolloverRepository,
	collections repositories.CollectionRepository,
	cfg Config,
) *Engine {
	if cfg.Rates == nil {
		cfg.Rates = DefaultRates()
	}
	if cfg.Exchange.From == 0 {
		cfg.Exchange = ExchangeRate{From: 2, To: 1}
	}
	if cfg.SaleDiscountPct == 0 {
		cfg.SaleDiscountPct = 25
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DayKey == nil {
		cfg.DayKey = func(t time.Time) string { return t.UTC().Format("20060102") }
	}
	return &Engine{
		ledger:      ledgerMgr,
		printings:   printings,
		overrides:   overrides,
		rollovers:   rollovers,
		collections: collections,
		cfg:         cfg,
	}
}

// Rule is the resolved conversion pricing for one printing. A zero CraftCost
// or ShardYield marks the direction as closed.
type Rule struct {
	CraftCost  int64
	ShardYield int64
	Source     string
}

func (r *Rule) Craftable() bool    { return r.CraftCost > 0 }
func (r *Rule) Fragmentable() bool { return r.ShardYield > 0 }

// EffectiveRule resolves the pricing that applies to the printing right now.
func (e *Engine) EffectiveRule(ctx context.Context, printing *models.Printing) (*Rule, error) {
	now := e.cfg.Now()

	override, err := e.overrides.Effective(ctx, printing, now)
	if err != nil {
		return nil, err
	}
	if override != nil {
		source := "override:card"
		if override.PrintingID != "" {
			source = "override:printing"
		}
		return &Rule{
			CraftCost:  override.CraftCost,
			ShardYield: override.ShardYield,
			Source:     source,
		}, nil
	}

	rule := &Rule{Source: "base"}
	if cost, ok := e.cfg.Rates.CraftCostFor(printing.Rarity); ok && printing.Craftable {
		rule.CraftCost = cost
	}
	if yield, ok := e.cfg.Rates.ShardYieldFor(printing.Rarity); ok {
		rule.ShardYield = yield
	}

	if rule.CraftCost > 0 {
		sales, err := e.rollovers.SalesForDay(ctx, e.cfg.DayKey(now))
		if err != nil {
			return nil, err
		}
		for _, sale := range sales {
			if sale.PrintingID == printing.ID {
				rule.CraftCost = sale.PriceShards
				rule.Source = "sale"
				break
			}
		}
	}
	return rule, nil
}

// Craft spends set shards to mint copies of the printing. Returns the shards
// spent.
func (e *Engine) Craft(ctx context.Context, userID, printingID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("craft amount must be positive, got %d", amount)
	}
	printing, err := e.printings.GetByID(ctx, printingID)
	if err != nil {
		return 0, err
	}
	rule, err := e.EffectiveRule(ctx, printing)
	if err != nil {
		return 0, err
	}
	if !rule.Craftable() {
		return 0, fmt.Errorf("%w: %s", ErrUncraftable, printing.Label())
	}

	cost := rule.CraftCost * amount
	kind := models.ShardKind(printing.SetID)
	opID := "craft:" + printingID

	err = e.ledger.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := e.ledger.AdjustCurrencyTx(ctx, tx, userID, kind, -cost, opID); err != nil {
			if errors.Is(err, ledger.ErrInsufficientBalance) {
				return fmt.Errorf("%w: need %d %s", ErrInsufficientShards, cost, kind)
			}
			return err
		}
		return e.ledger.AdjustCopiesTx(ctx, tx, userID, printingID, amount, 0, opID)
	})
	if err != nil {
		return 0, err
	}

	slog.Info("Crafted printing",
		slog.String("user_id", userID),
		slog.String("printing", printing.Label()),
		slog.Int64("amount", amount),
		slog.Int64("spent", cost),
		slog.String("rule", rule.Source))
	return cost, nil
}

// Fragment destroys copies of the printing for set shards. Binder copies are
// not spendable. Returns the shards credited.
func (e *Engine) Fragment(ctx context.Context, userID, printingID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("fragment amount must be positive, got %d", amount)
	}
	printing, err := e.printings.GetByID(ctx, printingID)
	if err != nil {
		return 0, err
	}
	rule, err := e.EffectiveRule(ctx, printing)
	if err != nil {
		return 0, err
	}
	if !rule.Fragmentable() {
		return 0, fmt.Errorf("%w: %s", ErrUnfragmentable, printing.Label())
	}

	yield := rule.ShardYield * amount
	kind := models.ShardKind(printing.SetID)
	opID := "fragment:" + printingID

	err = e.ledger.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		copyRow, err := e.ledger.CopiesTx(ctx, tx, userID, printingID)
		if err != nil {
			return err
		}
		if copyRow.Tradable() < amount {
			return fmt.Errorf("%w: %d spendable of %s, needs %d",
				ledger.ErrInsufficientCopies, copyRow.Tradable(), printingID, amount)
		}
		if err := e.ledger.AdjustCopiesTx(ctx, tx, userID, printingID, -amount, 0, opID); err != nil {
			return err
		}
		_, err = e.ledger.AdjustCurrencyTx(ctx, tx, userID, kind, yield, opID)
		return err
	})
	if err != nil {
		return 0, err
	}

	slog.Info("Fragmented printing",
		slog.String("user_id", userID),
		slog.String("printing", printing.Label()),
		slog.Int64("amount", amount),
		slog.Int64("yield", yield),
		slog.String("rule", rule.Source))
	return yield, nil
}

// BulkResult reports the outcome of one printing within a bulk fragment.
type BulkResult struct {
	Printing   *models.Printing
	Fragmented int64
	Shards     int64
	Err        error
}

// FragmentBulk fragments every copy above keep (plus binder copies, which are
// always held back) across the user's printings in one set and rarity. Each
// printing settles independently: failures are reported per printing and do
// not stop the rest. keep < 0 selects the configured default.
func (e *Engine) FragmentBulk(ctx context.Context, userID, setName, rarity string, keep int64) ([]BulkResult, error) {
	if keep < 0 {
		keep = e.cfg.BulkKeepDefault
	}
	owned, err := e.collections.ListByUserSetRarity(ctx, userID, setName, models.CanonicalRarity(rarity))
	if err != nil {
		return nil, err
	}

	var results []BulkResult
	for _, row := range owned {
		excess := row.Copy.Owned - row.Copy.Binder - keep
		if excess <= 0 {
			continue
		}
		shards, err := e.Fragment(ctx, userID, row.Printing.ID, excess)
		result := BulkResult{Printing: row.Printing, Err: err}
		if err == nil {
			result.Fragmented = excess
			result.Shards = shards
		} else {
			slog.Warn("Bulk fragment skipped printing",
				slog.String("user_id", userID),
				slog.String("printing", row.Printing.Label()),
				slog.Any("error", err))
		}
		results = append(results, result)
	}
	return results, nil
}

// ShardExchange converts shards between sets at the configured A:B rate. The
// amount is the source side and must be a positive multiple of A. Returns the
// target shards credited.
func (e *Engine) ShardExchange(ctx context.Context, userID string, fromSet, toSet int, amount int64) (int64, error) {
	rate := e.cfg.Exchange
	switch {
	case fromSet == toSet:
		return 0, fmt.Errorf("%w: same set on both sides", ErrInvalidExchange)
	case amount <= 0:
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidExchange)
	case amount%rate.From != 0:
		return 0, fmt.Errorf("%w: amount %d is not a multiple of %d", ErrInvalidExchange, amount, rate.From)
	}

	credited := amount / rate.From * rate.To
	fromKind := models.ShardKind(fromSet)
	toKind := models.ShardKind(toSet)
	opID := fmt.Sprintf("exchange:%d>%d", fromSet, toSet)

	err := e.ledger.WithAccounts(ctx, []string{userID}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := e.ledger.AdjustCurrencyTx(ctx, tx, userID, fromKind, -amount, opID); err != nil {
			if errors.Is(err, ledger.ErrInsufficientBalance) {
				return fmt.Errorf("%w: need %d %s", ErrInsufficientShards, amount, fromKind)
			}
			return err
		}
		_, err := e.ledger.AdjustCurrencyTx(ctx, tx, userID, toKind, credited, opID)
		return err
	})
	if err != nil {
		return 0, err
	}

	slog.Info("Exchanged shards",
		slog.String("user_id", userID),
		slog.String("rate", rate.String()),
		slog.Int64("spent", amount),
		slog.Int64("credited", credited))
	return credited, nil
}

// SetOverride installs or replaces a conversion override.
func (e *Engine) SetOverride(ctx context.Context, override *models.ConversionOverride) error {
	if override.PrintingID == "" && override.CardName == "" {
		return fmt.Errorf("%w: override needs a printing id or card name", ErrUnknownOverrideTarget)
	}
	if override.PrintingID != "" {
		if _, err := e.printings.GetByID(ctx, override.PrintingID); err != nil {
			return err
		}
	}
	return e.overrides.Set(ctx, override)
}

// ClearOverride removes overrides by printing id, or by card name + set.
func (e *Engine) ClearOverride(ctx context.Context, printingID, cardName, setName string) error {
	var (
		cleared int64
		err     error
	)
	if printingID != "" {
		cleared, err = e.overrides.ClearByPrinting(ctx, printingID)
	} else {
		cleared, err = e.overrides.ClearByCard(ctx, cardName, setName)
	}
	if err != nil {
		return err
	}
	if cleared == 0 {
		return ErrUnknownOverrideTarget
	}
	return nil
}

// ListOverrides returns the overrides active right now.
func (e *Engine) ListOverrides(ctx context.Context) ([]*models.ConversionOverride, error) {
	return e.overrides.ListActive(ctx, e.cfg.Now())
}
