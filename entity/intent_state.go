package entity

import (
	"context"
	"time"

	"github.com/omni/intent-gmp/gmp"
)

type FlowType string

const (
	FlowInflow  FlowType = "inflow"
	FlowOutflow FlowType = "outflow"
)

// Intent stages derived from the confirmation flags.
const (
	StageAwaitingEscrowConfirmation = "awaiting_escrow_confirmation"
	StageEscrowConfirmed            = "escrow_confirmed"
	StageAwaitingFulfillmentProof   = "awaiting_fulfillment_proof"
	StageFulfillmentProofReceived   = "fulfillment_proof_received"
)

// IntentGmpState is the hub-side per-intent progress record. Each flag is set
// exactly once by the matching receive handler; the row is deleted when the
// intent concludes.
type IntentGmpState struct {
	IntentID                 gmp.IntentID `db:"intent_id"`
	DstChainID               uint64       `db:"dst_chain_id"`
	FlowType                 FlowType     `db:"flow_type"`
	EscrowConfirmed          bool         `db:"escrow_confirmed"`
	FulfillmentProofReceived bool         `db:"fulfillment_proof_received"`
	CreatedAt                *time.Time   `db:"created_at"`
	UpdatedAt                *time.Time   `db:"updated_at"`
}

func (s *IntentGmpState) Stage() string {
	switch s.FlowType {
	case FlowInflow:
		if !s.EscrowConfirmed {
			return StageAwaitingEscrowConfirmation
		}
		if !s.FulfillmentProofReceived {
			return StageEscrowConfirmed
		}
		return StageFulfillmentProofReceived
	default:
		if !s.FulfillmentProofReceived {
			return StageAwaitingFulfillmentProof
		}
		return StageFulfillmentProofReceived
	}
}

type IntentStatesRepo interface {
	Insert(ctx context.Context, state *IntentGmpState) error
	GetByIntentID(ctx context.Context, intentID gmp.IntentID) (*IntentGmpState, error)
	// SetEscrowConfirmed flips the flag exactly once; reports whether this call
	// did the flip.
	SetEscrowConfirmed(ctx context.Context, intentID gmp.IntentID) (bool, error)
	// SetFulfillmentProofReceived flips the flag exactly once; reports whether
	// this call did the flip.
	SetFulfillmentProofReceived(ctx context.Context, intentID gmp.IntentID) (bool, error)
	Delete(ctx context.Context, intentID gmp.IntentID) error
}
