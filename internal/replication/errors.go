package replication

import "errors"

var (
	// ErrReplicationFailed wraps every sink failure reported in a Result.
	ErrReplicationFailed = errors.New("replication failed")

	// ErrNothingToPublish is returned by a Sink when the remote already
	// holds the content.
	ErrNothingToPublish = errors.New("remote already up to date")

	// ErrUnknownStrategy is returned by NewSink for an unrecognised strategy.
	ErrUnknownStrategy = errors.New("unknown replication strategy")
)
