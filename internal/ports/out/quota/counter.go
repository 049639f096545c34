package quota

import (
	"context"
	"time"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

// Counter tracks submissions per owner per calendar month in the shared store.
type Counter interface {
	Current(ctx context.Context, owner domain.OwnerID, at time.Time) (int, error)
	Increment(ctx context.Context, owner domain.OwnerID, at time.Time) (int, error)
}

// Period returns the counter bucket for t, e.g. "2024-01".
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}
