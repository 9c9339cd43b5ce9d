// Package logging provides structured logging for tempkey.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text when a human is watching, with service and version
// attached to each entry.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log bot tokens, GitHub tokens, or record passwords.
package logging
