package intent

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/endpoint"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/logging"
)

// EscrowHandler is the connected-ledger inflow handler. It stores hub-issued
// requirements, validates escrow creation against them, and releases vaulted
// funds to the solver only after a fulfillment proof is delivered.
type EscrowHandler struct {
	chainID    uint64
	hubChainID uint64
	admin      gmp.Address
	vault      gmp.Address
	self       gmp.Address

	reqs    entity.RequirementsRepo
	escrows entity.EscrowsRepo
	tokens  TokenBook
	outbox  *endpoint.Outbox
	ep      *endpoint.Endpoint
	logger  logging.Logger
}

func NewEscrowHandler(
	chainID, hubChainID uint64,
	admin, vault, self gmp.Address,
	reqs entity.RequirementsRepo,
	escrows entity.EscrowsRepo,
	tokens TokenBook,
	outbox *endpoint.Outbox,
	ep *endpoint.Endpoint,
	logger logging.Logger,
) *EscrowHandler {
	return &EscrowHandler{
		chainID:    chainID,
		hubChainID: hubChainID,
		admin:      admin,
		vault:      vault,
		self:       self,
		reqs:       reqs,
		escrows:    escrows,
		tokens:     tokens,
		outbox:     outbox,
		ep:         ep,
		logger:     logger,
	}
}

func (h *EscrowHandler) HandleMessage(ctx context.Context, srcChainID uint64, msg gmp.Message) error {
	switch m := msg.(type) {
	case *gmp.IntentRequirements:
		return h.storeRequirements(ctx, m)
	case *gmp.FulfillmentProof:
		return h.release(ctx, m)
	default:
		return fmt.Errorf("escrow handler got tag 0x%02x from chain %d: %w", msg.Tag(), srcChainID, gmp.ErrUnknownMessageType)
	}
}

func (h *EscrowHandler) storeRequirements(ctx context.Context, m *gmp.IntentRequirements) error {
	inserted, err := h.reqs.Ensure(ctx, &entity.Requirements{
		ChainID:        h.chainID,
		IntentID:       m.IntentID,
		RequesterAddr:  m.RequesterAddr,
		AmountRequired: m.AmountRequired,
		TokenAddr:      m.TokenAddr,
		SolverAddr:     m.SolverAddr,
		Expiry:         m.Expiry,
	})
	if err != nil {
		return fmt.Errorf("can't store intent requirements: %w", err)
	}
	logger := h.logger.WithField("intent_id", m.IntentID.Hex())
	if !inserted {
		logger.Info("duplicate intent requirements ignored")
		return nil
	}
	logger.Info("stored intent requirements")
	return nil
}

// CreateEscrow locks the requester's funds in the vault after validating the
// call against the stored requirements, then reports the lock to the hub.
func (h *EscrowHandler) CreateEscrow(ctx context.Context, caller gmp.Address, intentID gmp.IntentID, token gmp.Address, amount, now uint64) (*entity.Escrow, error) {
	req, err := h.reqs.GetByIntentID(ctx, h.chainID, intentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, gmp.ErrRequirementsNotFound
		}
		return nil, fmt.Errorf("can't load intent requirements: %w", err)
	}
	if req.EscrowCreated {
		return nil, gmp.ErrEscrowAlreadyCreated
	}
	if now > req.Expiry {
		return nil, gmp.ErrIntentExpired
	}
	if amount != req.AmountRequired {
		return nil, gmp.ErrAmountMismatch
	}
	if token != req.TokenAddr {
		return nil, gmp.ErrTokenMismatch
	}
	if caller != req.RequesterAddr {
		return nil, gmp.ErrRequesterMismatch
	}

	done, err := h.reqs.MarkEscrowCreated(ctx, h.chainID, intentID)
	if err != nil {
		return nil, fmt.Errorf("can't mark escrow created: %w", err)
	}
	if !done {
		return nil, gmp.ErrEscrowAlreadyCreated
	}
	if err = h.tokens.Transfer(ctx, token, caller, h.vault, amount); err != nil {
		// Revert the flip so the requester can retry the lock.
		if uerr := h.reqs.UnmarkEscrowCreated(ctx, h.chainID, intentID); uerr != nil {
			h.logger.WithError(uerr).Error("can't revert escrow created flag")
		}
		return nil, fmt.Errorf("can't move funds to vault: %w", err)
	}

	escrow := &entity.Escrow{
		ChainID:     h.chainID,
		IntentID:    intentID,
		EscrowID:    escrowID(intentID, token, caller, amount),
		CreatorAddr: caller,
		Amount:      amount,
		TokenAddr:   token,
		SolverAddr:  req.SolverAddr,
	}
	if err = h.escrows.Insert(ctx, escrow); err != nil {
		return nil, fmt.Errorf("can't store escrow: %w", err)
	}

	confirmation := &gmp.EscrowConfirmation{
		IntentID:       intentID,
		EscrowID:       escrow.EscrowID,
		AmountEscrowed: amount,
		TokenAddr:      token,
		CreatorAddr:    caller,
	}
	if err = h.sendToHub(ctx, confirmation.Encode()); err != nil {
		return nil, err
	}
	h.logger.WithFields(logrus.Fields{
		"intent_id": intentID.Hex(),
		"escrow_id": escrow.EscrowID.Hex(),
		"amount":    amount,
	}).Info("escrow created")
	return escrow, nil
}

// release is the sole path moving vaulted funds to a solver.
func (h *EscrowHandler) release(ctx context.Context, m *gmp.FulfillmentProof) error {
	escrow, err := h.escrows.GetByIntentID(ctx, h.chainID, m.IntentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return gmp.ErrEscrowNotFound
		}
		return fmt.Errorf("can't load escrow: %w", err)
	}
	if escrow.Fulfilled {
		return gmp.ErrAlreadyFulfilled
	}
	done, err := h.escrows.MarkFulfilled(ctx, h.chainID, m.IntentID)
	if err != nil {
		return fmt.Errorf("can't mark escrow fulfilled: %w", err)
	}
	if !done {
		return gmp.ErrAlreadyFulfilled
	}
	if err = h.tokens.Transfer(ctx, escrow.TokenAddr, h.vault, m.SolverAddr, escrow.Amount); err != nil {
		// Revert the transition so the escrow stays releasable on redelivery.
		if uerr := h.escrows.UnmarkFulfilled(ctx, h.chainID, m.IntentID); uerr != nil {
			h.logger.WithError(uerr).Error("can't revert escrow fulfilled flag")
		}
		return fmt.Errorf("can't release vaulted funds: %w", err)
	}
	h.logger.WithFields(logrus.Fields{
		"intent_id":   m.IntentID.Hex(),
		"solver_addr": m.SolverAddr.Hex(),
		"amount":      escrow.Amount,
	}).Info("escrow released to solver")
	return nil
}

// Cancel returns vaulted funds to the original creator once the intent has
// expired. Admin-only; the refund never goes to the caller.
func (h *EscrowHandler) Cancel(ctx context.Context, caller gmp.Address, intentID gmp.IntentID, now uint64) error {
	if caller != h.admin {
		return gmp.ErrAdminOnly
	}
	req, err := h.reqs.GetByIntentID(ctx, h.chainID, intentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return gmp.ErrRequirementsNotFound
		}
		return fmt.Errorf("can't load intent requirements: %w", err)
	}
	if now <= req.Expiry {
		return gmp.ErrNotYetExpired
	}
	escrow, err := h.escrows.GetByIntentID(ctx, h.chainID, intentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return gmp.ErrEscrowNotFound
		}
		return fmt.Errorf("can't load escrow: %w", err)
	}
	done, err := h.escrows.MarkCancelled(ctx, h.chainID, intentID)
	if err != nil {
		return fmt.Errorf("can't mark escrow cancelled: %w", err)
	}
	if !done {
		return gmp.ErrAlreadyReleased
	}
	if err = h.tokens.Transfer(ctx, escrow.TokenAddr, h.vault, escrow.CreatorAddr, escrow.Amount); err != nil {
		// Revert the transition so the cancellation can be retried.
		if uerr := h.escrows.UnmarkCancelled(ctx, h.chainID, intentID); uerr != nil {
			h.logger.WithError(uerr).Error("can't revert escrow cancelled flag")
		}
		return fmt.Errorf("can't refund vaulted funds: %w", err)
	}
	h.logger.WithFields(logrus.Fields{
		"intent_id":    intentID.Hex(),
		"creator_addr": escrow.CreatorAddr.Hex(),
		"amount":       escrow.Amount,
	}).Info("expired escrow cancelled")
	return nil
}

func (h *EscrowHandler) sendToHub(ctx context.Context, payload []byte) error {
	remotes := h.ep.RemoteEndpoints(h.hubChainID)
	if len(remotes) == 0 {
		return fmt.Errorf("hub chain %d: %w", h.hubChainID, gmp.ErrNoRemoteEndpoint)
	}
	_, err := h.outbox.Send(ctx, h.hubChainID, remotes[0], payload, h.self)
	return err
}

func escrowID(intentID gmp.IntentID, token, creator gmp.Address, amount uint64) gmp.IntentID {
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], amount)
	sum := crypto.Keccak256(intentID[:], token[:], creator[:], amt[:])
	return gmp.IntentIDFromBytes(sum)
}
