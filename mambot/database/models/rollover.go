package models

import (
	"github.com/uptrace/bun"
)

// RolloverState is the process-wide singleton (row id 1). LastProcessedDay is
// the YYYYMMDD key of the last fully completed boundary. SimulateNextDay makes
// the next check treat the boundary as already advanced by one period.
type RolloverState struct {
	bun.BaseModel `bun:"table:rollover_state,alias:rs"`

	ID               int64  `bun:"id,pk"`
	LastProcessedDay string `bun:"last_processed_day,notnull,default:''"`
	SimulateNextDay  bool   `bun:"simulate_next_day,notnull,default:false"`
}

// RolloverJobRun is a per-job Done-for-boundary marker, persisted immediately
// after that job's effects commit so a crash mid-run never re-runs a completed
// job nor skips an incomplete one.
type RolloverJobRun struct {
	bun.BaseModel `bun:"table:rollover_jobs,alias:rj"`

	Name       string `bun:"name,pk"`
	LastRunDay string `bun:"last_run_day,notnull,default:''"`
}

// RolloverGrant records that a grant-shaped job already paid one account for
// one boundary. The primary key makes re-runs idempotent per account.
type RolloverGrant struct {
	bun.BaseModel `bun:"table:rollover_grants,alias:rg"`

	Job    string `bun:"job,pk"`
	UserID string `bun:"user_id,pk"`
	DayKey string `bun:"day_key,pk"`
}

// RunningTotal is a monotonically increasing counter, e.g. total daily
// mambucks made earnable so far.
type RunningTotal struct {
	bun.BaseModel `bun:"table:running_totals,alias:rt"`

	Name  string `bun:"name,pk"`
	Total int64  `bun:"total,notnull,default:0"`
}
