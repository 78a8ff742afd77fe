// Package store defines the database access abstraction shared by
// the concrete store implementations under internal/platform.
package store
