// Package sqlite implements the task store on an embedded, file-backed
// SQLite database. The database file is the durable source of truth for
// every task's lifecycle; all state transitions are single conditional
// UPDATE statements so interleaved writers cannot corrupt the state machine.
package sqlite
