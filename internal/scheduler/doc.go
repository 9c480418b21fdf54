// Package scheduler provides a small in-process cron engine used by the
// crawl scheduler and the endpoint health monitor.
//
// Jobs are registered under a stable logical name so that a caller can query
// their next/previous run time and history. Overlap policy defaults to
// skip-if-running, which is what gives the crawl tick its non-reentrant
// latch: a schedule can opt into OverlapAllow if concurrent runs are safe.
package scheduler
