// Package task defines the broadcast task record: the campaign content,
// its ordered recipient list, scheduling configuration, lifecycle status,
// delivery receipts, and result counters.
//
// The record is exclusively owned by the dispatch service once submitted.
// Other layers create, read, and request transitions; they never touch
// receipts or counters directly.
package task
