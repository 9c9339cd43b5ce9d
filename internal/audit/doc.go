// Package audit records who changed the record store and when.
//
// Every successful /add and /remove writes one entry to the audit_logs
// table. Entries are append-only; the admin reads the most recent ones with
// /history.
package audit
