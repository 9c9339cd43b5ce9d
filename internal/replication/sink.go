package replication

import (
	"context"
	"time"
)

// Sink publishes the full serialized record file to a remote archive.
type Sink interface {
	// Name identifies the strategy in logs, metrics and results.
	Name() string

	// Publish makes the remote copy match content. Implementations return
	// ErrNothingToPublish when no change was needed.
	Publish(ctx context.Context, content []byte) error
}

// Status is the outcome of one replication attempt.
type Status string

const (
	// StatusSynced means the remote now holds the content.
	StatusSynced Status = "synced"

	// StatusFailed means the local write stands but the remote is stale.
	StatusFailed Status = "failed"

	// StatusSkipped means the sink found the remote already held the content.
	StatusSkipped Status = "skipped"

	// StatusDeduped means the content matched the last successful publish,
	// so the sink was not called.
	StatusDeduped Status = "deduped"

	// StatusDisabled means no sink is configured.
	StatusDisabled Status = "disabled"
)

// Result describes one replication attempt.
type Result struct {
	Status   Status        `json:"status"`
	Sink     string        `json:"sink,omitempty"`
	Digest   string        `json:"digest,omitempty"`
	Err      error         `json:"-"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the remote copy is now stale.
func (r Result) Failed() bool {
	return r.Status == StatusFailed
}

// Error returns the failure message, or "" when the attempt did not fail.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
