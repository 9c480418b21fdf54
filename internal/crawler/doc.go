// Package crawler implements notice.Crawler against the upstream
// legislative-notice HTML index.
package crawler
