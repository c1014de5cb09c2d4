package entity

import (
	"context"
	"time"

	"github.com/omni/intent-gmp/gmp"
)

// Escrow is a record of funds locked in the vault on a connected ledger.
// It is mutated exactly once: either to fulfilled+released when a fulfillment
// proof arrives, or to released alone when an expired escrow is cancelled.
type Escrow struct {
	ChainID     uint64       `db:"chain_id"`
	IntentID    gmp.IntentID `db:"intent_id"`
	EscrowID    gmp.IntentID `db:"escrow_id"`
	CreatorAddr gmp.Address  `db:"creator_addr"`
	Amount      uint64       `db:"amount"`
	TokenAddr   gmp.Address  `db:"token_addr"`
	SolverAddr  gmp.Address  `db:"solver_addr"`
	Fulfilled   bool         `db:"fulfilled"`
	Released    bool         `db:"released"`
	CreatedAt   *time.Time   `db:"created_at"`
	UpdatedAt   *time.Time   `db:"updated_at"`
}

type EscrowsRepo interface {
	// Insert creates the escrow; at most one escrow may exist per intent.
	Insert(ctx context.Context, escrow *Escrow) error
	GetByIntentID(ctx context.Context, chainID uint64, intentID gmp.IntentID) (*Escrow, error)
	// MarkFulfilled atomically sets fulfilled=true, released=true if the escrow
	// was neither; reports whether this call did the transition.
	MarkFulfilled(ctx context.Context, chainID uint64, intentID gmp.IntentID) (bool, error)
	// UnmarkFulfilled reverts a fulfilled transition whose payout failed, so the
	// escrow stays releasable.
	UnmarkFulfilled(ctx context.Context, chainID uint64, intentID gmp.IntentID) error
	// MarkCancelled sets released=true if the escrow was not yet released;
	// reports whether this call did the transition.
	MarkCancelled(ctx context.Context, chainID uint64, intentID gmp.IntentID) (bool, error)
	// UnmarkCancelled reverts a cancelled transition whose refund failed.
	UnmarkCancelled(ctx context.Context, chainID uint64, intentID gmp.IntentID) error
}
