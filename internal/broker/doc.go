// Package broker defers dispatch-worker invocations.
//
// The durable path is a Redis sorted set scored by ready time; a poller
// claims due members and hands them to the registered handler. When Redis is
// down (or the enqueue probe times out) the submission path falls back to
// in-process timers, which preserve the delay semantics for the life of the
// process but do not survive a restart. That availability-over-durability
// trade-off is deliberate: a dropped deferred dispatch leaves the task
// visible in pending, where it can be retried by hand.
package broker
