package domain

import (
	"context"
	"io"
	"time"
)

// OpportunityStore persists emitted arbitrage opportunities. The engine core
// never blocks on the store; persistence happens in the event relay.
type OpportunityStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]ArbitrageOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AlertStore persists liquidity alerts.
type AlertStore interface {
	Insert(ctx context.Context, alert LiquidityAlert) error
	ListRecent(ctx context.Context, limit int) ([]LiquidityAlert, error)
	ListBefore(ctx context.Context, before time.Time) ([]LiquidityAlert, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged opportunity and alert history into blob storage.
type Archiver interface {
	ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error)
	ArchiveAlerts(ctx context.Context, before time.Time) (int64, error)
}
