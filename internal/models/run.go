package models

import "time"

type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

type Run struct {
	ID               int64
	RunKey           string
	CreatedAt        time.Time
	CompletedAt      *time.Time
	InputPath        string
	PValueTable      string
	Threshold        string
	WorkspacePath    string
	Status           RunStatus
	Error            string
	RecombinantCount int
}
