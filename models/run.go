package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

type BackupRun struct {
	ID              int64      `json:"id" db:"id"`
	ClosetID        string     `json:"closet_id" db:"closet_id"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	LinksFound      int        `json:"links_found" db:"links_found"`
	PagesFetched    int        `json:"pages_fetched" db:"pages_fetched"`
	ListingsNew     int        `json:"listings_new" db:"listings_new"`
	ListingsUpdated int        `json:"listings_updated" db:"listings_updated"`
	ListingsSkipped int        `json:"listings_skipped" db:"listings_skipped"`
	ErrorsCount     int        `json:"errors_count" db:"errors_count"`
}

type ClosetStats struct {
	ClosetID          string     `json:"closet_id" db:"closet_id"`
	LastRunAt         *time.Time `json:"last_run_at" db:"last_run_at"`
	LastRunStatus     string     `json:"last_run_status" db:"last_run_status"`
	TotalBackedUp     int        `json:"total_backed_up" db:"total_backed_up"`
	SuccessRate       float64    `json:"success_rate" db:"success_rate"`
	AvgRunDurationSec int        `json:"avg_run_duration_sec" db:"avg_run_duration_sec"`
}
