// Package events defines the task lifecycle notification contract: a closed
// set of event variants, their wire envelope, the per-user private channel
// naming scheme, and the Publisher that fans events out over Redis pub/sub.
package events
