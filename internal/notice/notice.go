// Package notice defines the scraped legislative-notice record and the
// crawler interface the crawl scheduler depends on. The crawler
// implementation itself (HTML fetch/parse) lives in package crawler.
package notice

import "context"

// Notice is one scraped legislative announcement. Identity for diff
// purposes is Num alone; the remaining fields are opaque strings passed
// through to the outbound embed.
type Notice struct {
	Num              int64
	Subject          string
	ProposerCategory string
	Committee        string
	Link             string
}

// Crawler produces the current upstream index. Implementations may return
// an error on timeout or network failure; the crawl scheduler treats any
// error as recoverable and skips the tick.
type Crawler interface {
	Crawl(ctx context.Context) ([]Notice, error)
}
