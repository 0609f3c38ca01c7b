package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Currency kinds are open string keys so new shard sets never require a schema
// change. Shard kinds embed the set id: "shards/1", "shards/2", ...
const (
	KindMambucks = "mambucks"
	KindChips    = "chips"

	shardKindPrefix = "shards/"
)

func ShardKind(setID int) string {
	return fmt.Sprintf("%s%d", shardKindPrefix, setID)
}

// ShardSetID returns the set id for a shard kind, or false for any other kind.
func ShardSetID(kind string) (int, bool) {
	rest, ok := strings.CutPrefix(kind, shardKindPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}

type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	UserID    string    `bun:"user_id,pk"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type Balance struct {
	bun.BaseModel `bun:"table:balances,alias:b"`

	UserID string `bun:"user_id,pk"`
	Kind   string `bun:"kind,pk"`
	Amount int64  `bun:"amount,notnull,default:0"`
}
