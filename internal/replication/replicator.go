package replication

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// DefaultTimeout bounds a single Publish call when none is configured.
const DefaultTimeout = 30 * time.Second

// Logger defines the logging interface used by the Replicator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives one sample per replication attempt.
// influxdb.Client satisfies this interface.
type Metrics interface {
	WriteReplicationMetric(sink, status string, duration time.Duration)
}

// Replicator runs a Sink with a timeout and skips content it has already
// published. It is safe for concurrent use; attempts are serialised.
type Replicator struct {
	sink    Sink
	timeout time.Duration
	logger  Logger
	metrics Metrics
	now     func() time.Time

	mu         sync.Mutex
	lastDigest string
	last       Result
}

// NewReplicator wraps sink. A nil sink yields a Replicator that reports
// StatusDisabled. A non-positive timeout selects DefaultTimeout.
func NewReplicator(sink Sink, timeout time.Duration) *Replicator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Replicator{
		sink:    sink,
		timeout: timeout,
		logger:  noopLogger{},
		now:     time.Now,
		last:    Result{Status: StatusDisabled},
	}
}

// SetLogger sets the logger.
func (r *Replicator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetMetrics sets the metrics writer. nil disables metrics.
func (r *Replicator) SetMetrics(metrics Metrics) {
	r.metrics = metrics
}

// SinkName returns the configured strategy name, or "none".
func (r *Replicator) SinkName() string {
	if r.sink == nil {
		return "none"
	}
	return r.sink.Name()
}

// Last returns the most recent Result.
func (r *Replicator) Last() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Replicate publishes content and reports the outcome. It never returns an
// error: failures are wrapped in ErrReplicationFailed inside the Result.
func (r *Replicator) Replicate(ctx context.Context, content []byte) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.now()
	result := Result{Sink: r.SinkName(), Digest: Digest(content), At: start}

	switch {
	case r.sink == nil:
		result.Status = StatusDisabled
		r.last = result
		return result

	case result.Digest == r.lastDigest:
		result.Status = StatusDeduped
		r.logger.Debug("replication deduped, content unchanged", "sink", result.Sink, "digest", result.Digest)
		r.record(result)
		return result
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.sink.Publish(publishCtx, content)
	cancel()
	result.Duration = r.now().Sub(start)

	switch {
	case errors.Is(err, ErrNothingToPublish):
		result.Status = StatusSkipped
		r.lastDigest = result.Digest
		r.logger.Info("replication skipped, remote up to date", "sink", result.Sink, "digest", result.Digest)

	case err != nil:
		result.Status = StatusFailed
		result.Err = fmt.Errorf("%w: %s: %w", ErrReplicationFailed, result.Sink, err)
		r.logger.Error("replication failed", "sink", result.Sink, "digest", result.Digest,
			"duration", result.Duration, "error", err)

	default:
		result.Status = StatusSynced
		r.lastDigest = result.Digest
		r.logger.Info("replication synced", "sink", result.Sink, "digest", result.Digest, "duration", result.Duration)
	}

	r.record(result)
	return result
}

func (r *Replicator) record(result Result) {
	r.last = result
	if r.metrics != nil {
		r.metrics.WriteReplicationMetric(result.Sink, string(result.Status), result.Duration)
	}
}

// Digest returns the hex BLAKE3-256 digest of content.
func Digest(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}
