// Package device owns the list of approved devices and its file.
//
// The Store keeps every record in a single JSON document:
//
//	{
//	  "users": [
//	    {
//	      "id": "dev1",
//	      "username": "alice",
//	      "password": "p@ss",
//	      "expire": "2030-01-01",
//	      "allowoffline": true
//	    }
//	  ]
//	}
//
// The file is the source of truth. Every operation reloads it, so nothing
// cached in memory survives a restart or hides a hand edit. Mutations
// rewrite the whole file atomically and then hand the new bytes to a
// Replicator, whose Result is returned to the caller alongside the local
// outcome.
//
// Passwords are stored and returned verbatim.
//
// # Thread Safety
//
// A single mutex serialises every load-modify-persist sequence and every
// read. Command rates are low enough that one coarse lock is sufficient.
package device
