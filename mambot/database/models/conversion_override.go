package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ConversionOverride replaces the static craft/fragment rates for its target.
// Exactly one of PrintingID or (CardName, with optional SetName) is set: a
// printing-specific override beats a card-level one. Overrides are
// reason-annotated and may be time-bounded.
type ConversionOverride struct {
	bun.BaseModel `bun:"table:conversion_overrides,alias:co"`

	ID         int64     `bun:"id,pk,autoincrement"`
	PrintingID string    `bun:"printing_id"`
	CardName   string    `bun:"card_name"`
	SetName    string    `bun:"set_name"`
	CraftCost  int64     `bun:"craft_cost,notnull"`
	ShardYield int64     `bun:"shard_yield,notnull"`
	Reason     string    `bun:"reason,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,nullzero"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

// Active reports whether the override applies at the given instant.
func (o *ConversionOverride) Active(now time.Time) bool {
	return o.ExpiresAt.IsZero() || now.Before(o.ExpiresAt)
}

// DailySale is one discounted printing for a rollover day, rerolled by the
// sale_reroll job. It affects craft cost only.
type DailySale struct {
	bun.BaseModel `bun:"table:daily_sales,alias:ds"`

	DayKey      string `bun:"day_key,pk"`
	Rarity      string `bun:"rarity,pk"`
	PrintingID  string `bun:"printing_id,notnull"`
	PriceShards int64  `bun:"price_shards,notnull"`
}
