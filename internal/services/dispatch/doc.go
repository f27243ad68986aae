// Package dispatch is the broadcast orchestration engine.
//
// # Lifecycle
//
// Submit validates and persists a task, resolves its delivery strategy, and
// defers a worker invocation on the durable queue; when the queue cannot be
// reached within the probe deadline it arms an in-process timer with the
// same delay instead. The worker walks the task's recipients strictly in
// order, sends the content sequence to each, records receipts and counters
// after every recipient, and paces itself per the resolved strategy.
//
// # Re-entrancy
//
// Worker invocations are idempotent: the worker claims a task by
// compare-and-set from pending to processing, so broker redelivery or a
// broker-then-fallback double submission is a no-op for the loser. Retry is
// only offered for failed tasks and resets them to pending before
// resubmitting; undo reverses a finished broadcast by deleting its recorded
// messages while keeping receipts (and their metrics) for reporting.
package dispatch
