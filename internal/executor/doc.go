// Package executor runs batches of jobs under a concurrency ceiling with
// per-job timeout and retry, and offers a non-blocking submission path for
// callers that want to fire a batch and await it later.
package executor
