package entity

import (
	"context"
	"time"
)

// RelayCursor is the per-source-ledger progress marker. LastNonce is the last
// outbox nonce the relay finished with; LastBlock is the last scanned block
// for log-scanning ledger families. Both advance monotonically and may be
// safely recomputed from zero because delivery is idempotent.
type RelayCursor struct {
	ChainID   uint64     `db:"chain_id"`
	LastNonce uint64     `db:"last_nonce"`
	LastBlock uint64     `db:"last_block"`
	CreatedAt *time.Time `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

type RelayCursorsRepo interface {
	Ensure(ctx context.Context, cursor *RelayCursor) error
	GetByChainID(ctx context.Context, chainID uint64) (*RelayCursor, error)
}
