package entity

import (
	"context"
	"time"

	"github.com/omni/intent-gmp/gmp"
)

// OutboxEntry is a message waiting for relay pickup. Entries are retained
// indefinitely so relays can always recover by re-scanning from any nonce.
type OutboxEntry struct {
	ID          uint        `db:"id"`
	ChainID     uint64      `db:"chain_id"`
	Nonce       uint64      `db:"nonce"`
	DstChainID  uint64      `db:"dst_chain_id"`
	DstEndpoint gmp.Address `db:"dst_endpoint"`
	Sender      gmp.Address `db:"sender"`
	Payload     []byte      `db:"payload"`
	CreatedAt   *time.Time  `db:"created_at"`
}

type OutboxRepo interface {
	// Insert assigns the next sequence number for the sending ledger and sets
	// entry.Nonce. The counter is global per ledger, not per destination.
	Insert(ctx context.Context, entry *OutboxEntry) error
	ListFrom(ctx context.Context, chainID, fromNonce uint64, limit int) ([]*OutboxEntry, error)
}
