package domain

import "errors"

// ErrProviderBusy indicates all connections for a server are in use.
var ErrProviderBusy = errors.New("all providers busy")

// ErrArticleNotFound indicates a 430 response from every eligible server.
var ErrArticleNotFound = errors.New("article not found on any server")

// ErrNoServersConfigured is returned by dispatch when a Job has no eligible
// servers at all (spec.md §8 boundary behavior).
var ErrNoServersConfigured = errors.New("no servers configured")

// ErrDuplicateJob is returned by Admission when duplicate.action = block
// matches an existing or historical Job.
var ErrDuplicateJob = errors.New("duplicate job rejected")

// ErrInsufficientDiskSpace is returned by Admission's disk-space precheck.
var ErrInsufficientDiskSpace = errors.New("insufficient free disk space")

// ErrJobNotFound is returned by control operations (pause/resume/cancel) for
// an unknown job id.
var ErrJobNotFound = errors.New("job not found")
