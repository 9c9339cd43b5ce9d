package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCommands    = "tempkey_commands"
	MeasurementReplication = "tempkey_replication"
)

// WriteCommandMetric records one handled chat command.
//
// Parameters:
//   - command: Command name without slash ("add", "list", "lookup", ...)
//   - outcome: "ok", "denied", "invalid", "error" ...
//   - duration: Time spent handling the command
func (c *Client) WriteCommandMetric(command, outcome string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(commandPoint(command, outcome, duration, time.Now()))
}

// WriteReplicationMetric records one replication attempt.
//
// Parameters:
//   - sink: Strategy name ("git", "github", "mqtt")
//   - status: "synced", "failed", "skipped", "deduped"
//   - duration: Time spent in the sink
func (c *Client) WriteReplicationMetric(sink, status string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(replicationPoint(sink, status, duration, time.Now()))
}

func commandPoint(command, outcome string, duration time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCommands,
		map[string]string{
			"command": command,
			"outcome": outcome,
		},
		map[string]interface{}{
			"duration_ms": durationMillis(duration),
			"count":       int64(1),
		},
		at,
	)
}

func replicationPoint(sink, status string, duration time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementReplication,
		map[string]string{
			"sink":   sink,
			"status": status,
		},
		map[string]interface{}{
			"duration_ms": durationMillis(duration),
			"count":       int64(1),
		},
		at,
	)
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
