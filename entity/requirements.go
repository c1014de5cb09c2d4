package entity

import (
	"context"
	"time"

	"github.com/omni/intent-gmp/gmp"
)

// Requirements are the hub-issued constraints for one intent, stored on a
// connected ledger when an IntentRequirements message is delivered.
type Requirements struct {
	ChainID        uint64       `db:"chain_id"`
	IntentID       gmp.IntentID `db:"intent_id"`
	RequesterAddr  gmp.Address  `db:"requester_addr"`
	AmountRequired uint64       `db:"amount_required"`
	TokenAddr      gmp.Address  `db:"token_addr"`
	SolverAddr     gmp.Address  `db:"solver_addr"`
	Expiry         uint64       `db:"expiry"`
	EscrowCreated  bool         `db:"escrow_created"`
	Fulfilled      bool         `db:"fulfilled"`
	CreatedAt      *time.Time   `db:"created_at"`
	UpdatedAt      *time.Time   `db:"updated_at"`
}

type RequirementsRepo interface {
	// Ensure stores the requirements idempotently and reports whether the row
	// was freshly inserted. A duplicate receipt is a signal, not an error.
	Ensure(ctx context.Context, req *Requirements) (bool, error)
	GetByIntentID(ctx context.Context, chainID uint64, intentID gmp.IntentID) (*Requirements, error)
	// MarkEscrowCreated flips escrow_created exactly once; reports whether this
	// call did the flip.
	MarkEscrowCreated(ctx context.Context, chainID uint64, intentID gmp.IntentID) (bool, error)
	// UnmarkEscrowCreated reverts a flip whose follow-up work failed, making the
	// intent retryable again.
	UnmarkEscrowCreated(ctx context.Context, chainID uint64, intentID gmp.IntentID) error
	// MarkFulfilled flips fulfilled exactly once; reports whether this call did
	// the flip.
	MarkFulfilled(ctx context.Context, chainID uint64, intentID gmp.IntentID) (bool, error)
	// UnmarkFulfilled reverts a flip whose follow-up work failed.
	UnmarkFulfilled(ctx context.Context, chainID uint64, intentID gmp.IntentID) error
}
