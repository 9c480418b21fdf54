// Package crawl is the Crawl Scheduler: a strictly non-reentrant periodic
// tick that crawls the upstream index, diffs against the recency cache,
// and drives the dispatch coordinator for any newly observed notices.
package crawl
