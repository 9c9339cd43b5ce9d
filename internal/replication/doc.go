// Package replication propagates the record file to a remote archive after
// every local write.
//
// A Sink publishes serialized content somewhere durable. The Replicator
// wraps one Sink with a bounded timeout, BLAKE3 change detection, logging
// and metrics, and reports the outcome as a Result instead of an error:
// the local write has already succeeded by the time replication runs, so
// callers decide how much of a remote failure to surface.
//
// Strategies, selected by replication.strategy:
//
//	none    replication disabled
//	git     commit the file in its working tree and push to a remote
//	github  replace the file through the GitHub contents API
//	mqtt    publish the file as a retained message
package replication
