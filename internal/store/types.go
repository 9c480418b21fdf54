package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by operations addressing a single row that does
// not exist.
var ErrNotFound = errors.New("store: endpoint not found")

// Endpoint is one subscriber webhook.
type Endpoint struct {
	ID        int64
	URL       string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats is the aggregate view used by the health monitor and the
// system-health HTTP surface.
type Stats struct {
	Total         int
	Active        int
	Inactive      int
	OldInactive   int // inactive, updated_at older than 30 days
	RecentInactive int // inactive, updated_at within 7 days
}

// Efficiency is the active ratio as a percentage; 100 when Total is 0.
func (s Stats) Efficiency() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Active) / float64(s.Total) * 100
}

// BulkResult reports the outcome of a bulk registration.
type BulkResult struct {
	Created     int
	Reactivated int
	Duplicates  int
}

// Repository is the Endpoint Repository interface. All methods are safe
// for concurrent use.
type Repository interface {
	CreateOrReactivate(ctx context.Context, url string) (Endpoint, error)
	FindActive(ctx context.Context) ([]Endpoint, error)
	FindByID(ctx context.Context, id int64) (Endpoint, error)
	FindByURL(ctx context.Context, url string) (Endpoint, error)
	Deactivate(ctx context.Context, id int64) error
	DeletePermanent(ctx context.Context, ids []int64) (int, error)
	CleanupOlderInactive(ctx context.Context, age time.Duration) (int, error)
	DeleteAllInactive(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
	BulkCreate(ctx context.Context, urls []string) (BulkResult, error)
	ActiveCount(ctx context.Context) (int, error)
	Close() error
}
