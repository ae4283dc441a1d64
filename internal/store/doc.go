// Package store defines the persistence interfaces used by the service
// layer, together with the common error taxonomy shared by all store
// implementations. Concrete implementations live under
// internal/platform/postgres.
package store
