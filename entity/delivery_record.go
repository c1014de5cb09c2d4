package entity

import (
	"context"
	"time"

	"github.com/omni/intent-gmp/gmp"
)

// DeliveryRecord marks one (intent_id, msg_type) as delivered on a receiving
// ledger. Records are never removed, which is what makes redelivery after
// relay restarts a harmless no-op.
type DeliveryRecord struct {
	ChainID    uint64       `db:"chain_id"`
	IntentID   gmp.IntentID `db:"intent_id"`
	MsgType    uint8        `db:"msg_type"`
	SrcChainID uint64       `db:"src_chain_id"`
	CreatedAt  *time.Time   `db:"created_at"`
}

type DeliveryRecordsRepo interface {
	// MarkDelivered inserts the record and reports whether it was fresh.
	MarkDelivered(ctx context.Context, rec *DeliveryRecord) (bool, error)
	IsDelivered(ctx context.Context, chainID uint64, intentID gmp.IntentID, msgType uint8) (bool, error)
	GetByIntentID(ctx context.Context, intentID gmp.IntentID) ([]*DeliveryRecord, error)
}
