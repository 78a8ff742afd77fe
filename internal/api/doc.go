// Package api implements the local HTTP surface the desktop frontend
// uses to submit, inspect, and cancel background tasks. It is a thin
// adapter over the task queue; no business logic lives here.
package api
