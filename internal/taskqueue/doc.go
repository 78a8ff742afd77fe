// Package taskqueue implements the persistent background task queue.
//
// Tasks are durable rows in an embedded store; the store is the only
// authoritative view of a task's lifecycle. A single Queue per process
// schedules pending tasks FIFO under a concurrency ceiling, executes the
// registered handler for each, and converts handler failures into retry or
// terminal state transitions. A Reaper periodically deletes expired terminal
// rows and requeues tasks stranded in the running state by a crashed owner,
// giving at-least-once execution across process restarts.
package taskqueue
