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

// OutflowValidator is the connected-ledger outflow handler. It lets an
// authorized solver push funds directly to the requester and reports the
// fulfillment back to the hub.
type OutflowValidator struct {
	chainID    uint64
	hubChainID uint64
	self       gmp.Address

	reqs   entity.RequirementsRepo
	tokens TokenBook
	outbox *endpoint.Outbox
	ep     *endpoint.Endpoint
	logger logging.Logger
}

func NewOutflowValidator(
	chainID, hubChainID uint64,
	self gmp.Address,
	reqs entity.RequirementsRepo,
	tokens TokenBook,
	outbox *endpoint.Outbox,
	ep *endpoint.Endpoint,
	logger logging.Logger,
) *OutflowValidator {
	return &OutflowValidator{
		chainID:    chainID,
		hubChainID: hubChainID,
		self:       self,
		reqs:       reqs,
		tokens:     tokens,
		outbox:     outbox,
		ep:         ep,
		logger:     logger,
	}
}

func (v *OutflowValidator) HandleMessage(ctx context.Context, srcChainID uint64, msg gmp.Message) error {
	m, ok := msg.(*gmp.IntentRequirements)
	if !ok {
		return fmt.Errorf("outflow validator got tag 0x%02x from chain %d: %w", msg.Tag(), srcChainID, gmp.ErrUnknownMessageType)
	}
	inserted, err := v.reqs.Ensure(ctx, &entity.Requirements{
		ChainID:        v.chainID,
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
	if !inserted {
		v.logger.WithField("intent_id", m.IntentID.Hex()).Info("duplicate intent requirements ignored")
	}
	return nil
}

// FulfillIntent transfers the required amount from the solver to the
// requester and emits a fulfillment proof addressed back to the hub.
func (v *OutflowValidator) FulfillIntent(ctx context.Context, caller gmp.Address, intentID gmp.IntentID, token gmp.Address, now uint64) error {
	req, err := v.reqs.GetByIntentID(ctx, v.chainID, intentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return gmp.ErrRequirementsNotFound
		}
		return fmt.Errorf("can't load intent requirements: %w", err)
	}
	if req.Fulfilled {
		return gmp.ErrAlreadyFulfilled
	}
	if now > req.Expiry {
		return gmp.ErrIntentExpired
	}
	if !req.SolverAddr.IsZero() && caller != req.SolverAddr {
		return gmp.ErrUnauthorizedSolver
	}
	if token != req.TokenAddr {
		return gmp.ErrTokenMismatch
	}

	done, err := v.reqs.MarkFulfilled(ctx, v.chainID, intentID)
	if err != nil {
		return fmt.Errorf("can't mark intent fulfilled: %w", err)
	}
	if !done {
		return gmp.ErrAlreadyFulfilled
	}
	if err = v.tokens.Transfer(ctx, token, caller, req.RequesterAddr, req.AmountRequired); err != nil {
		// Revert the flip so the solver can retry the payment.
		if uerr := v.reqs.UnmarkFulfilled(ctx, v.chainID, intentID); uerr != nil {
			v.logger.WithError(uerr).Error("can't revert intent fulfilled flag")
		}
		return fmt.Errorf("can't transfer funds to requester: %w", err)
	}

	proof := &gmp.FulfillmentProof{
		IntentID:        intentID,
		SolverAddr:      caller,
		AmountFulfilled: req.AmountRequired,
		Timestamp:       now,
	}
	remotes := v.ep.RemoteEndpoints(v.hubChainID)
	if len(remotes) == 0 {
		return fmt.Errorf("hub chain %d: %w", v.hubChainID, gmp.ErrNoRemoteEndpoint)
	}
	if _, err = v.outbox.Send(ctx, v.hubChainID, remotes[0], proof.Encode(), v.self); err != nil {
		return err
	}
	v.logger.WithFields(logrus.Fields{
		"intent_id":   intentID.Hex(),
		"solver_addr": caller.Hex(),
		"amount":      req.AmountRequired,
	}).Info("intent fulfilled")
	return nil
}
