// Package store is the durable state layer.
//
// State is kept as four independent records: the primary entities (creatives,
// button sets, channels, schedules), the pending deletions, the stats counters,
// and a one-time first-run marker. Each record is loaded and saved as a whole;
// mutations are read-modify-write cycles serialized behind a per-record mutex.
// There is no transaction across records: callers must tolerate a crash landing
// between two related writes (a stats undercount is acceptable, message state
// is not lost).
//
// A missing or unreadable record is never an error; it reads as the empty
// default.
//
// Two drivers exist behind the Store interface: a JSON file driver (default)
// and a SQLite driver compiled in with the "sqlite" build tag.
package store
