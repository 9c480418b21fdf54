// Package dispatch is the Dispatch Coordinator: for each new notice it
// fetches the current active endpoints, sends to each sequentially under
// the rate limiter, and drives endpoint-lifecycle actions (deactivation)
// from the delivery results.
package dispatch
