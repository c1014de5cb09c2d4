package intent

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/endpoint"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/logging"
)

// HubState tracks per-intent cross-ledger progress on the hub. Receive
// handlers flip confirmation flags exactly once; the gated entry points
// refuse to act until the required flag is set and hand back a Settlement
// that concludes the intent.
type HubState struct {
	chainID uint64
	self    gmp.Address

	states entity.IntentStatesRepo
	outbox *endpoint.Outbox
	ep     *endpoint.Endpoint
	logger logging.Logger
}

func NewHubState(
	chainID uint64,
	self gmp.Address,
	states entity.IntentStatesRepo,
	outbox *endpoint.Outbox,
	ep *endpoint.Endpoint,
	logger logging.Logger,
) *HubState {
	return &HubState{
		chainID: chainID,
		self:    self,
		states:  states,
		outbox:  outbox,
		ep:      ep,
		logger:  logger,
	}
}

// CreateIntent registers a new intent and queues its requirements for
// delivery to the destination ledger.
func (h *HubState) CreateIntent(ctx context.Context, dstChainID uint64, flow entity.FlowType, req *gmp.IntentRequirements) error {
	if err := h.states.Insert(ctx, &entity.IntentGmpState{
		IntentID:   req.IntentID,
		DstChainID: dstChainID,
		FlowType:   flow,
	}); err != nil {
		return fmt.Errorf("can't store intent state: %w", err)
	}
	if err := h.SendIntentRequirements(ctx, dstChainID, req); err != nil {
		return err
	}
	h.logger.WithFields(logrus.Fields{
		"intent_id":    req.IntentID.Hex(),
		"dst_chain_id": dstChainID,
		"flow_type":    flow,
	}).Info("intent created")
	return nil
}

// SendIntentRequirements queues an IntentRequirements message for the
// destination ledger's endpoint.
func (h *HubState) SendIntentRequirements(ctx context.Context, dstChainID uint64, req *gmp.IntentRequirements) error {
	remotes := h.ep.RemoteEndpoints(dstChainID)
	if len(remotes) == 0 {
		return fmt.Errorf("dst chain %d: %w", dstChainID, gmp.ErrNoRemoteEndpoint)
	}
	_, err := h.outbox.Send(ctx, dstChainID, remotes[0], req.Encode(), h.self)
	return err
}

func (h *HubState) HandleMessage(ctx context.Context, srcChainID uint64, msg gmp.Message) error {
	switch m := msg.(type) {
	case *gmp.EscrowConfirmation:
		return h.receiveEscrowConfirmation(ctx, srcChainID, m)
	case *gmp.FulfillmentProof:
		return h.receiveFulfillmentProof(ctx, srcChainID, m)
	default:
		return fmt.Errorf("hub got tag 0x%02x from chain %d: %w", msg.Tag(), srcChainID, gmp.ErrUnknownMessageType)
	}
}

func (h *HubState) receiveEscrowConfirmation(ctx context.Context, srcChainID uint64, m *gmp.EscrowConfirmation) error {
	// A no-op flip means either a duplicate confirmation or an unknown intent;
	// only the former is ignorable.
	if _, err := h.requireState(ctx, m.IntentID); err != nil {
		return err
	}
	flipped, err := h.states.SetEscrowConfirmed(ctx, m.IntentID)
	if err != nil {
		return fmt.Errorf("can't set escrow confirmed: %w", err)
	}
	logger := h.logger.WithFields(logrus.Fields{
		"intent_id":    m.IntentID.Hex(),
		"src_chain_id": srcChainID,
	})
	if !flipped {
		logger.Debug("duplicate escrow confirmation ignored")
		return nil
	}
	logger.Info("escrow confirmed")
	return nil
}

func (h *HubState) receiveFulfillmentProof(ctx context.Context, srcChainID uint64, m *gmp.FulfillmentProof) error {
	if _, err := h.requireState(ctx, m.IntentID); err != nil {
		return err
	}
	flipped, err := h.states.SetFulfillmentProofReceived(ctx, m.IntentID)
	if err != nil {
		return fmt.Errorf("can't set fulfillment proof received: %w", err)
	}
	logger := h.logger.WithFields(logrus.Fields{
		"intent_id":    m.IntentID.Hex(),
		"src_chain_id": srcChainID,
		"solver_addr":  m.SolverAddr.Hex(),
	})
	if !flipped {
		logger.Debug("duplicate fulfillment proof ignored")
		return nil
	}
	logger.Info("fulfillment proof received")
	return nil
}

func (h *HubState) requireState(ctx context.Context, intentID gmp.IntentID) (*entity.IntentGmpState, error) {
	state, err := h.states.GetByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, gmp.ErrIntentStateNotFound
		}
		return nil, fmt.Errorf("can't load intent state: %w", err)
	}
	return state, nil
}

// ConfirmSolverFulfillment is the inflow path's gated entry point: once the
// connected ledger has confirmed the escrow, the hub settles the solver and
// sends the proof that releases the vaulted funds. The returned Settlement
// must be finished by the caller once its own bookkeeping succeeds.
func (h *HubState) ConfirmSolverFulfillment(ctx context.Context, intentID gmp.IntentID, solver gmp.Address, amount, now uint64) (*Settlement, error) {
	state, err := h.requireState(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !state.EscrowConfirmed {
		return nil, gmp.ErrEscrowNotConfirmedYet
	}

	proof := &gmp.FulfillmentProof{
		IntentID:        intentID,
		SolverAddr:      solver,
		AmountFulfilled: amount,
		Timestamp:       now,
	}
	remotes := h.ep.RemoteEndpoints(state.DstChainID)
	if len(remotes) == 0 {
		return nil, fmt.Errorf("dst chain %d: %w", state.DstChainID, gmp.ErrNoRemoteEndpoint)
	}
	if _, err = h.outbox.Send(ctx, state.DstChainID, remotes[0], proof.Encode(), h.self); err != nil {
		return nil, err
	}
	h.logger.WithFields(logrus.Fields{
		"intent_id":   intentID.Hex(),
		"solver_addr": solver.Hex(),
		"amount":      amount,
	}).Info("solver fulfillment confirmed")
	return newSettlement(intentID, h.states, h.logger), nil
}

// ClaimOutflow is the outflow path's gated entry point: the claim is only
// handed out after the connected ledger's fulfillment proof has arrived.
func (h *HubState) ClaimOutflow(ctx context.Context, intentID gmp.IntentID) (*Settlement, error) {
	state, err := h.requireState(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !state.FulfillmentProofReceived {
		return nil, gmp.ErrFulfillmentProofNotReceived
	}
	h.logger.WithField("intent_id", intentID.Hex()).Info("outflow claim unlocked")
	return newSettlement(intentID, h.states, h.logger), nil
}

// IntentStage reports the current stage name for monitoring.
func (h *HubState) IntentStage(ctx context.Context, intentID gmp.IntentID) (string, error) {
	state, err := h.requireState(ctx, intentID)
	if err != nil {
		return "", err
	}
	return state.Stage(), nil
}
