package conversion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/duelhall/mambot/mambot/database/models"
)

// Rates holds the static per-rarity conversion table. A rarity absent from
// CraftCost is not craftable; absent from ShardYield, not fragmentable.
// Starlight appears in neither.
type Rates struct {
	CraftCost  map[string]int64
	ShardYield map[string]int64
}

func DefaultRates() *Rates {
	return &Rates{
		CraftCost: map[string]int64{
			models.RarityCommon: 5,
			models.RarityRare:   10,
			models.RaritySuper:  20,
			models.RarityUltra:  50,
			models.RaritySecret: 100,
		},
		ShardYield: map[string]int64{
			models.RarityCommon: 2,
			models.RarityRare:   4,
			models.RaritySuper:  7,
			models.RarityUltra:  20,
			models.RaritySecret: 40,
		},
	}
}

func (r *Rates) CraftCostFor(rarity string) (int64, bool) {
	cost, ok := r.CraftCost[models.CanonicalRarity(rarity)]
	return cost, ok && cost > 0
}

func (r *Rates) ShardYieldFor(rarity string) (int64, bool) {
	yield, ok := r.ShardYield[models.CanonicalRarity(rarity)]
	return yield, ok && yield > 0
}

// SalePrice applies a percentage discount to a base craft cost, rounding up.
func SalePrice(base, discountPct int64) int64 {
	return (base*(100-discountPct) + 99) / 100
}

// ExchangeRate is the A:B shard exchange ratio: A source shards become B
// target shards.
type ExchangeRate struct {
	From int64
	To   int64
}

// ParseExchangeRate parses "A:B". Zero or negative terms clamp to 1.
func ParseExchangeRate(raw string) (ExchangeRate, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return ExchangeRate{}, fmt.Errorf("invalid exchange rate %q: want A:B", raw)
	}
	from, err := strconv.ParseInt(strings.TrimSpace(left), 10, 64)
	if err != nil {
		return ExchangeRate{}, fmt.Errorf("invalid exchange rate %q: %w", raw, err)
	}
	to, err := strconv.ParseInt(strings.TrimSpace(right), 10, 64)
	if err != nil {
		return ExchangeRate{}, fmt.Errorf("invalid exchange rate %q: %w", raw, err)
	}
	if from < 1 {
		from = 1
	}
	if to < 1 {
		to = 1
	}
	return ExchangeRate{From: from, To: to}, nil
}

func (r ExchangeRate) String() string {
	return fmt.Sprintf("%d:%d", r.From, r.To)
}
