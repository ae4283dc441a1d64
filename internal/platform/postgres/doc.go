// Package postgres provides PostgreSQL implementations of the store
// interfaces. All implementations translate database errors into the
// sentinel errors defined in the store package, so callers never depend
// on driver-specific error types.
package postgres
