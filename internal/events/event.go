// Package events implements the bounded broadcast Event Bus (spec.md
// §4.5): typed events, independent subscriber cursors, and a lag
// indicator for subscribers that fall behind instead of blocking emission.
package events

import "time"

type Kind string

const (
	Queued                Kind = "queued"
	Downloading            Kind = "downloading"
	FileCompleted          Kind = "file_completed"
	DirectUnpackStarted    Kind = "direct_unpack_started"
	DirectUnpackExtracting Kind = "direct_unpack_extracting"
	DirectUnpackExtracted  Kind = "direct_unpack_extracted"
	DirectUnpackCancelled  Kind = "direct_unpack_cancelled"
	DirectUnpackComplete   Kind = "direct_unpack_complete"
	DirectRenamed          Kind = "direct_renamed"
	Verifying              Kind = "verifying"
	VerifyComplete         Kind = "verify_complete"
	Repairing              Kind = "repairing"
	RepairComplete         Kind = "repair_complete"
	VerifySkipped          Kind = "verify_skipped"
	RepairSkipped          Kind = "repair_skipped"
	Extracting             Kind = "extracting"
	ExtractComplete        Kind = "extract_complete"
	Moving                 Kind = "moving"
	Cleaning               Kind = "cleaning"
	Complete               Kind = "complete"
	Failed                 Kind = "failed"
	SpeedLimitChanged      Kind = "speed_limit_changed"
	QueuePaused            Kind = "queue_paused"
	QueueResumed           Kind = "queue_resumed"
	DuplicateDetected      Kind = "duplicate_detected"
	WebhookFailed          Kind = "webhook_failed"
	ScriptFailed           Kind = "script_failed"
	Shutdown               Kind = "shutdown"
)

// Event is the envelope every emission carries. Payload fields not
// relevant to a Kind are left zero.
type Event struct {
	Kind      Kind
	JobID     int64
	Time      time.Time

	Percent       float64
	SpeedBps      float64
	HealthPercent float64

	Archive string
	Damaged bool
	Success bool

	Stage      string
	Error      string
	FilesKept  bool
	Path       string

	Method       string
	ExistingName string

	OldName string
	NewName string
}
