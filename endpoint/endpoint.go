package endpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/logging"
)

// Handler consumes a decoded message routed by the endpoint.
type Handler interface {
	HandleMessage(ctx context.Context, srcChainID uint64, msg gmp.Message) error
}

// Endpoint is the per-ledger receive gatekeeper: it authorizes relays,
// verifies the claimed remote sender, deduplicates deliveries and routes
// payloads to the handlers registered for each message type.
//
// Deliveries are serialized, matching the serial transaction execution of the
// ledgers this models, so route-then-mark is atomic with respect to replays.
type Endpoint struct {
	chainID uint64
	admin   gmp.Address
	records entity.DeliveryRecordsRepo
	logger  logging.Logger

	deliverMu sync.Mutex

	mu       sync.RWMutex
	relays   map[gmp.Address]bool
	remotes  map[uint64][]gmp.Address
	handlers map[byte][]Handler
}

func New(chainID uint64, admin gmp.Address, records entity.DeliveryRecordsRepo, logger logging.Logger) *Endpoint {
	return &Endpoint{
		chainID:  chainID,
		admin:    admin,
		records:  records,
		logger:   logger,
		relays:   make(map[gmp.Address]bool),
		remotes:  make(map[uint64][]gmp.Address),
		handlers: make(map[byte][]Handler),
	}
}

func (e *Endpoint) ChainID() uint64 {
	return e.chainID
}

// RegisterHandler attaches a handler for the given message type. Several
// handlers may share a type; all of them see every fresh delivery.
func (e *Endpoint) RegisterHandler(tag byte, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[tag] = append(e.handlers[tag], h)
}

func (e *Endpoint) requireAdmin(caller gmp.Address) error {
	if caller != e.admin {
		return gmp.ErrAdminOnly
	}
	return nil
}

func (e *Endpoint) AddRelay(caller, relay gmp.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.relays[relay] = true
	return nil
}

func (e *Endpoint) RemoveRelay(caller, relay gmp.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.relays, relay)
	return nil
}

// SetRemoteEndpoint replaces the remote endpoint set for a chain.
func (e *Endpoint) SetRemoteEndpoint(caller gmp.Address, chainID uint64, remote gmp.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remotes[chainID] = []gmp.Address{remote}
	return nil
}

// AddRemoteEndpoint appends to the remote endpoint set for a chain.
func (e *Endpoint) AddRemoteEndpoint(caller gmp.Address, chainID uint64, remote gmp.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remotes[chainID] = append(e.remotes[chainID], remote)
	return nil
}

func (e *Endpoint) IsRelayAuthorized(relay gmp.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.relays[relay]
}

func (e *Endpoint) RemoteEndpoints(chainID uint64) []gmp.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]gmp.Address, len(e.remotes[chainID]))
	copy(out, e.remotes[chainID])
	return out
}

func (e *Endpoint) IsMessageDelivered(ctx context.Context, intentID gmp.IntentID, tag byte) (bool, error) {
	return e.records.IsDelivered(ctx, e.chainID, intentID, tag)
}

func (e *Endpoint) checkRemote(srcChainID uint64, srcEndpoint gmp.Address) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	remotes, ok := e.remotes[srcChainID]
	if !ok || len(remotes) == 0 {
		return gmp.ErrNoRemoteEndpoint
	}
	for _, r := range remotes {
		if r == srcEndpoint {
			return nil
		}
	}
	return gmp.ErrUnknownRemoteEndpoint
}

// Deliver is the single externally callable write entry point.
func (e *Endpoint) Deliver(ctx context.Context, relayCaller gmp.Address, srcChainID uint64, srcEndpoint gmp.Address, payload []byte) error {
	if !e.IsRelayAuthorized(relayCaller) {
		return gmp.ErrUnauthorized
	}
	if err := e.checkRemote(srcChainID, srcEndpoint); err != nil {
		return err
	}
	key, err := gmp.DedupKey(payload)
	if err != nil {
		return err
	}
	intentID := gmp.IntentIDFromBytes(key[:32])
	tag := key[32]

	logger := e.logger.WithFields(logrus.Fields{
		"src_chain_id": srcChainID,
		"dst_chain_id": e.chainID,
		"intent_id":    intentID.Hex(),
		"msg_type":     fmt.Sprintf("0x%02x", tag),
	})

	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()

	delivered, err := e.records.IsDelivered(ctx, e.chainID, intentID, tag)
	if err != nil {
		return fmt.Errorf("can't check delivery record: %w", err)
	}
	if delivered {
		// Redelivery is expected after relay restarts, not an error.
		logger.Debug("duplicate delivery ignored")
		return nil
	}

	msg, err := gmp.Decode(payload)
	if err != nil {
		return err
	}

	e.mu.RLock()
	handlers := e.handlers[tag]
	e.mu.RUnlock()
	if len(handlers) == 0 {
		// A message type this deployment should never see indicates a
		// protocol or version mismatch that must not be masked.
		return fmt.Errorf("tag 0x%02x on chain %d: %w", tag, e.chainID, gmp.ErrUnknownMessageType)
	}
	for _, h := range handlers {
		if err := h.HandleMessage(ctx, srcChainID, msg); err != nil {
			return err
		}
	}

	if _, err := e.records.MarkDelivered(ctx, &entity.DeliveryRecord{
		ChainID:    e.chainID,
		IntentID:   intentID,
		MsgType:    tag,
		SrcChainID: srcChainID,
	}); err != nil {
		return fmt.Errorf("can't mark message delivered: %w", err)
	}
	logger.Info("message delivered")
	return nil
}
