package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CardCopy tracks how many copies of a printing a player owns and how many of
// those are marked into the binder. Binder copies remain owned: the invariant
// 0 <= binder <= owned holds at all times and the row is removed when owned
// reaches zero.
type CardCopy struct {
	bun.BaseModel `bun:"table:card_copies,alias:cc"`

	UserID     string    `bun:"user_id,pk"`
	PrintingID string    `bun:"printing_id,pk"`
	Owned      int64     `bun:"owned,notnull,default:0"`
	Binder     int64     `bun:"binder,notnull,default:0"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

// Tradable returns the copies not reserved by the binder marker.
func (c *CardCopy) Tradable() int64 {
	return c.Owned - c.Binder
}

type WishlistEntry struct {
	bun.BaseModel `bun:"table:wishlist_entries,alias:w"`

	UserID     string `bun:"user_id,pk"`
	PrintingID string `bun:"printing_id,pk"`
	Desired    int64  `bun:"desired,notnull,default:1"`
}
