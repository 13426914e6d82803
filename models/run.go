package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

type RunKind string

const (
	RunKindDiscover RunKind = "discover"
	RunKindScrape   RunKind = "scrape"
)

// CycleRun is the bookkeeping record of one discovery or scrape cycle.
type CycleRun struct {
	ID            int64      `json:"id" db:"id"`
	SiteID        string     `json:"site_id" db:"site_id"`
	Kind          RunKind    `json:"kind" db:"kind"`
	CycleID       string     `json:"cycle_id" db:"cycle_id"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	TargetsTotal  int        `json:"targets_total" db:"targets_total"`
	TargetsOK     int        `json:"targets_ok" db:"targets_ok"`
	TargetsSkip   int        `json:"targets_skipped" db:"targets_skipped"`
	FetchErrors   int        `json:"fetch_errors" db:"fetch_errors"`
	RowsWritten   int        `json:"rows_written" db:"rows_written"`
	BatchesFailed int        `json:"batches_failed" db:"batches_failed"`
}
