// Package store is the durable Endpoint Repository: a SQLite-backed
// mapping of canonical webhook URL to {id, active, timestamps}, with the
// bulk and aggregate operations the health monitor and dispatch
// coordinator need.
package store
