// Package cache is the Recency Cache: a bounded top-N set of recently seen
// notice identifiers plus full records, with restart-safe diff semantics.
// State is persisted so a process restart against a warm store does not
// re-notify on notices it already dispatched.
package cache
