// Package stores provides the store registry consulted by the planner and
// the archive of planning runs. Memory is an in-memory registry; SQLiteStore
// persists stores, remote slots, runs, resolved plans and per-round records
// in SQLite with embedded migrations.
package stores
