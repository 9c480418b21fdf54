package cache

import (
	"context"
	"time"

	"github.com/vientofactory/lawcast-backend/internal/notice"
)

// MaxSize bounds the recency window. Larger crawls are truncated to the
// most recent MaxSize notices by Num.
const MaxSize = 50

// Meta is the observable state of the cache, exposed on /stats.
type Meta struct {
	Size          int
	LastUpdated   time.Time
	MaxSize       int
	IsInitialized bool
}

// Cache is the Recency Cache interface used by the crawl scheduler.
type Cache interface {
	// Initialize seeds the cache on process startup. If the cache already
	// holds notices (a warm restart), it only marks itself initialized and
	// refreshes meta — it never overwrites existing state.
	Initialize(ctx context.Context, notices []notice.Notice) error
	// FindNew returns the subset of crawled whose Num is not already known.
	// On a cold Service that nonetheless has persisted notices (a restart
	// before Initialize ran), it reconstructs the id set first so the
	// returned diff is correct rather than the full crawled input.
	FindNew(ctx context.Context, crawled []notice.Notice) ([]notice.Notice, error)
	// Update merges crawled into the recency window. A no-op if every
	// crawled Num is already known, but still safe to call unconditionally.
	Update(ctx context.Context, crawled []notice.Notice) error
	// Recent returns the newest min(limit, MaxSize) notices.
	Recent(ctx context.Context, limit int) ([]notice.Notice, error)
	// Clear removes all persisted state and resets meta.
	Clear(ctx context.Context) error
	// Meta returns a snapshot of the cache's observable state.
	Meta(ctx context.Context) (Meta, error)
}
