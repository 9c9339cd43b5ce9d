// Package influxdb writes operational metrics to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health monitoring. The
// integration is optional: Connect returns ErrDisabled when the config
// section is off and callers continue without metrics.
//
// # Measurements
//
//	tempkey_commands     tags: command, outcome      fields: duration_ms, count
//	tempkey_replication  tags: sink, status          fields: duration_ms, count
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without metrics
//	}
//	defer client.Close()
//
//	client.WriteCommandMetric("add", "ok", 12*time.Millisecond)
package influxdb
