package models

import (
	"time"

	"github.com/uptrace/bun"
)

// QuestProgress is advanced by external game-event hooks and reset by the
// rollover quest_reset job or by admin action.
type QuestProgress struct {
	bun.BaseModel `bun:"table:quest_progress,alias:qp"`

	UserID    string    `bun:"user_id,pk"`
	QuestID   string    `bun:"quest_id,pk"`
	Progress  int64     `bun:"progress,notnull,default:0"`
	Claimed   bool      `bun:"claimed,notnull,default:false"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
