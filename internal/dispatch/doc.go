// Package dispatch renders creatives and fans them out to target channels.
//
// Delivery is best-effort and independent per channel: one channel failing
// never aborts the rest, there is no rollback and no retry queue. Sends are
// paced by a fixed minimum spacing, so a broadcast to N channels costs O(N)
// wall-clock time by design.
//
// Every successful send with a positive TTL registers a pending deletion for
// the sweeper; counters are persisted once per Deliver call.
package dispatch
