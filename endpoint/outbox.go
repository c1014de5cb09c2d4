package endpoint

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/logging"
)

// Outbox assigns sequence numbers to outgoing messages and stores them durably
// for relay pickup. Sending is a local write; it never fails due to
// destination-side conditions.
type Outbox struct {
	chainID uint64
	repo    entity.OutboxRepo
	logger  logging.Logger
}

func NewOutbox(chainID uint64, repo entity.OutboxRepo, logger logging.Logger) *Outbox {
	return &Outbox{
		chainID: chainID,
		repo:    repo,
		logger:  logger,
	}
}

func (o *Outbox) ChainID() uint64 {
	return o.chainID
}

func (o *Outbox) Send(ctx context.Context, dstChainID uint64, dstEndpoint gmp.Address, payload []byte, sender gmp.Address) (uint64, error) {
	entry := &entity.OutboxEntry{
		ChainID:     o.chainID,
		DstChainID:  dstChainID,
		DstEndpoint: dstEndpoint,
		Sender:      sender,
		Payload:     payload,
	}
	if err := o.repo.Insert(ctx, entry); err != nil {
		return 0, fmt.Errorf("can't store outbox entry: %w", err)
	}
	o.logger.WithFields(logrus.Fields{
		"src_chain_id": o.chainID,
		"dst_chain_id": dstChainID,
		"nonce":        entry.Nonce,
		"payload_len":  len(payload),
	}).Info("queued outbound message")
	return entry.Nonce, nil
}
