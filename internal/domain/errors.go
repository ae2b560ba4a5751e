package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNoOraclePrice  = errors.New("no oracle price")
	ErrStaleConsensus = errors.New("stale consensus")
	ErrEngineStopped  = errors.New("engine stopped")
	ErrFeedDisconnect = errors.New("feed disconnected")
)
