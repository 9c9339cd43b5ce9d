// Package api implements the HTTP health endpoint for the tempkey bot.
//
// This package provides:
//   - A plain-text liveness check at "/" for hosting platforms
//   - A JSON status document at /api/v1/health
//   - Middleware stack (request ID, logging, recovery)
//
// The endpoint only reads from the record store. It shares no mutable state
// with the command dispatcher beyond the store's own synchronised accessors.
package api
