package domain

import (
	"context"
	"sync/atomic"
	"time"
)

// Priority orders admission into the Priority Queue. Force bypasses the
// Supervisor's concurrency permit entirely.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityForce
)

func (p Priority) String() string {
	switch p {
	case PriorityForce:
		return "force"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// JobStatus is the persisted state of a Job's lifecycle (spec.md §4.8).
type JobStatus string

const (
	StatusQueued         JobStatus = "queued"
	StatusRunning        JobStatus = "running"
	StatusPaused         JobStatus = "paused"
	StatusPostProcessing JobStatus = "postprocessing"
	StatusComplete       JobStatus = "complete"
	StatusFailed         JobStatus = "failed"
	StatusRemoved        JobStatus = "removed"
)

// Terminal reports whether a status can never transition again.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusRemoved:
		return true
	default:
		return false
	}
}

// PostProcessMode selects the prefix of the verify/repair/extract/move/cleanup
// pipeline a Job runs (spec.md §4.10).
type PostProcessMode string

const (
	PostProcessNone              PostProcessMode = "none"
	PostProcessVerify            PostProcessMode = "verify"
	PostProcessRepair            PostProcessMode = "repair"
	PostProcessUnpack            PostProcessMode = "unpack"
	PostProcessUnpackAndCleanup  PostProcessMode = "unpack_and_cleanup"
)

// DirectUnpackState tracks the DirectUnpack Coordinator's lifecycle for a Job.
type DirectUnpackState string

const (
	DirectUnpackInactive  DirectUnpackState = "inactive"
	DirectUnpackActive    DirectUnpackState = "active"
	DirectUnpackSucceeded DirectUnpackState = "succeeded"
	DirectUnpackCancelled DirectUnpackState = "cancelled"
)

// Job is the unit of work admitted by the Admission Controller, scheduled by
// the Priority Queue, and executed by exactly one Download task at a time
// (spec.md §3).
type Job struct {
	ID          int64
	Name        string
	NZBMetaName string // from the NZB's own <meta type="name">, distinct from Name (spec.md §4.11)
	Category    string
	DestDir     string
	Priority    Priority
	PostProcess PostProcessMode
	Password    string
	PasswordSet []string
	NZBHash     string
	TotalSize   int64
	Status      JobStatus
	CreatedAt   time.Time
	StartedAt   time.Time

	DirectUnpackState     DirectUnpackState
	DirectUnpackExtracted int

	LastError string

	Articles []*Article
	Files    []*File

	// Runtime-only fields, not persisted directly.
	BytesDone        atomic.Int64
	ArticlesDone     atomic.Int64
	ArticlesFailed   atomic.Int64
	ArticlesPending  atomic.Int64
	ArticlesInFlight atomic.Int64

	CancelFunc context.CancelFunc
}

// HealthPercent implements spec.md §4.8's health formula.
func (j *Job) HealthPercent() float64 {
	done := j.ArticlesDone.Load()
	failed := j.ArticlesFailed.Load()
	pending := j.ArticlesPending.Load()
	inflight := j.ArticlesInFlight.Load()
	total := done + failed + pending + inflight
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}

// DirectUnpackShortcutEligible implements the invariant from spec.md §3:
// the post-process pipeline may skip straight to move+cleanup iff this is true.
func (j *Job) DirectUnpackShortcutEligible() bool {
	return j.DirectUnpackState == DirectUnpackSucceeded &&
		j.DirectUnpackExtracted > 0 &&
		j.ArticlesFailed.Load() == 0
}
