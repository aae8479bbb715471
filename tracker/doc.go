// Package tracker records one Record per model call.
//
// Tracking is fire-and-forget: Track never blocks and never fails the
// caller. Async buffers records in a bounded queue, drops them when the
// queue is full and flushes batches to a Writer on an interval. Store is a
// gorm/SQLite Writer that also answers spend queries, so it doubles as a
// budget.Source.
package tracker
