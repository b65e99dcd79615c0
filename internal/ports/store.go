package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
)

// Store is the persistence facade for orders and positions. Times on the
// wire are UTC; implementations may truncate to second precision.
type Store interface {
	InsertOrders(ctx context.Context, sourceID string, ts time.Time, orders []domain.OrderSnapshot) error
	InsertPositionsSnapshot(ctx context.Context, sourceID string, ts time.Time, positions []domain.PositionSnapshot) error
	InsertPositions(ctx context.Context, sourceID string, positions []domain.PositionRecord) error
	GetPositions(ctx context.Context, sourceID string, ts *time.Time) ([]domain.PositionRecord, error)
	MaxDatetime(ctx context.Context, sourceID string) (*time.Time, error)
}
