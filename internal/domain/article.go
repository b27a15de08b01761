package domain

import "sync/atomic"

// ArticleStatus is the unit of resume across a crash (spec.md §3): a
// restart re-enqueues only Pending and InFlight articles.
type ArticleStatus string

const (
	ArticleStatusPending  ArticleStatus = "pending"
	ArticleStatusInFlight ArticleStatus = "inflight"
	ArticleStatusDone     ArticleStatus = "done"
	ArticleStatusFailed   ArticleStatus = "failed"
)

// Article is an indivisible NNTP message carrying one yEnc-encoded
// fragment of a File. Child of a Job.
type Article struct {
	JobID     int64
	MessageID string
	Offset    int64
	Length    int64
	FileName  string
	Status    ArticleStatus
	Attempts  int
	ServerID  string // empty when unassigned

	// MissingFrom records which servers already reported "not found" for
	// this article, so the Server Pool does not retry them (spec.md §4.3).
	MissingFrom map[string]bool
}

// File is one output file assembled from one or more Articles.
type File struct {
	JobID         int64
	Name          string
	OriginalName  string // pre-DirectRename name, empty if never renamed
	Size          int64
	BytesWritten  atomic.Int64
	Completed     bool
	PartPath      string
	FinalPath     string
	IsParFile     bool
	allocatedOnce bool
}

// MarkAllocated returns true the first time it is called for this File,
// guarding the pre-allocation syscall against repeats (spec.md §4.8
// "File pre-allocation").
func (f *File) MarkAllocated() bool {
	if f.allocatedOnce {
		return false
	}
	f.allocatedOnce = true
	return true
}
