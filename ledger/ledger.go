package ledger

import (
	"context"
	"errors"

	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
)

// ErrAlreadyDelivered is reported by an adapter when the destination ledger
// rejects a delivery it has already executed. Harmless under at-most-once
// execution; the relay skips and moves on.
var ErrAlreadyDelivered = errors.New("message already delivered")

// Pending is one outbox message awaiting delivery, as observed on a source
// ledger.
type Pending struct {
	SrcChainID  uint64
	SrcEndpoint gmp.Address
	DstChainID  uint64
	DstEndpoint gmp.Address
	Nonce       uint64
	Block       uint64
	Sender      gmp.Address
	Payload     []byte
}

// Ledger is what the relay needs from one chain: reading its outbox past the
// cursor and executing deliveries addressed to it. Implementations must keep
// ListPending cheap to repeat; the relay re-scans after transient failures.
type Ledger interface {
	ChainID() uint64
	Name() string
	// ListPending returns outbox messages after cursor.LastNonce, at most limit,
	// and the block height the scan covered (LastBlock for the next cursor).
	ListPending(ctx context.Context, cursor *entity.RelayCursor, limit int) ([]*Pending, uint64, error)
	// SubmitDelivery executes one delivery on this ledger as the relay.
	SubmitDelivery(ctx context.Context, p *Pending) error
	// IsRelayAuthorized reports whether the relay address may deliver here.
	IsRelayAuthorized(ctx context.Context) (bool, error)
	RelayAddress() gmp.Address
}
