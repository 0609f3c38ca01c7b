package models

import (
	"time"

	"github.com/uptrace/bun"
)

// LedgerEntry is the bounded undo journal: one row per (user, target) holding
// only the most recent effect, enough for an admin to revert the immediately
// preceding result of a game action. Not an event log.
//
// Target is a currency kind ("mambucks", "shards/1", ...) or
// "printing/<printing_id>" for copy adjustments.
type LedgerEntry struct {
	bun.BaseModel `bun:"table:ledger_log,alias:ll"`

	UserID      string    `bun:"user_id,pk"`
	Target      string    `bun:"target,pk"`
	DeltaAmount int64     `bun:"delta_amount,notnull"`
	DeltaBinder int64     `bun:"delta_binder,notnull,default:0"`
	OpID        string    `bun:"op_id,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

const PrintingTargetPrefix = "printing/"

func PrintingTarget(printingID string) string {
	return PrintingTargetPrefix + printingID
}
