// Package native adapts an in-process ledger runtime, an endpoint plus an
// outbox store, to the relay's Ledger interface. The hub always runs as a
// native ledger; connected ledgers may too in simulated deployments.
package native

import (
	"context"
	"fmt"

	"github.com/omni/intent-gmp/endpoint"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/ledger"
)

type Ledger struct {
	chainID      uint64
	name         string
	endpointAddr gmp.Address
	relayAddr    gmp.Address

	outbox entity.OutboxRepo
	ep     *endpoint.Endpoint
}

func New(chainID uint64, name string, endpointAddr, relayAddr gmp.Address, outbox entity.OutboxRepo, ep *endpoint.Endpoint) *Ledger {
	return &Ledger{
		chainID:      chainID,
		name:         name,
		endpointAddr: endpointAddr,
		relayAddr:    relayAddr,
		outbox:       outbox,
		ep:           ep,
	}
}

func (l *Ledger) ChainID() uint64 {
	return l.chainID
}

func (l *Ledger) Name() string {
	return l.name
}

func (l *Ledger) EndpointAddress() gmp.Address {
	return l.endpointAddr
}

func (l *Ledger) ListPending(ctx context.Context, cursor *entity.RelayCursor, limit int) ([]*ledger.Pending, uint64, error) {
	entries, err := l.outbox.ListFrom(ctx, l.chainID, cursor.LastNonce+1, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("can't list outbox entries: %w", err)
	}
	pendings := make([]*ledger.Pending, 0, len(entries))
	var scannedTo uint64
	for _, e := range entries {
		pendings = append(pendings, &ledger.Pending{
			SrcChainID:  l.chainID,
			SrcEndpoint: l.endpointAddr,
			DstChainID:  e.DstChainID,
			DstEndpoint: e.DstEndpoint,
			Nonce:       e.Nonce,
			Sender:      e.Sender,
			Payload:     e.Payload,
		})
		scannedTo = e.Nonce
	}
	// The outbox has no block heights; the nonce doubles as the scan mark.
	if scannedTo < cursor.LastBlock {
		scannedTo = cursor.LastBlock
	}
	return pendings, scannedTo, nil
}

func (l *Ledger) SubmitDelivery(ctx context.Context, p *ledger.Pending) error {
	if p.DstEndpoint != l.endpointAddr {
		return fmt.Errorf("delivery addressed to %s, local endpoint is %s: %w",
			p.DstEndpoint.Hex(), l.endpointAddr.Hex(), gmp.ErrUnknownRemoteEndpoint)
	}
	return l.ep.Deliver(ctx, l.relayAddr, p.SrcChainID, p.SrcEndpoint, p.Payload)
}

func (l *Ledger) IsRelayAuthorized(_ context.Context) (bool, error) {
	return l.ep.IsRelayAuthorized(l.relayAddr), nil
}

func (l *Ledger) RelayAddress() gmp.Address {
	return l.relayAddr
}
