package models

import (
	"time"

	"github.com/uptrace/bun"
)

type MatchResult struct {
	bun.BaseModel `bun:"table:match_results,alias:mr"`

	ID        int64     `bun:"id,pk,autoincrement"`
	WinnerID  string    `bun:"winner_id,notnull"`
	LoserID   string    `bun:"loser_id,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type UserStats struct {
	bun.BaseModel `bun:"table:user_stats,alias:us"`

	UserID string `bun:"user_id,pk"`
	Wins   int64  `bun:"wins,notnull,default:0"`
	Losses int64  `bun:"losses,notnull,default:0"`
}
