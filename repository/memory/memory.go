// Package memory provides in-memory repository implementations. They back the
// simulated ledger runtime and tests; all mutations are atomic per key, using
// the same check-not-exists-then-insert discipline as the postgres repos.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/repository"
)

func NewRepo() *repository.Repo {
	return &repository.Repo{
		Outbox:          NewOutboxRepo(),
		DeliveryRecords: NewDeliveryRecordsRepo(),
		Requirements:    NewRequirementsRepo(),
		Escrows:         NewEscrowsRepo(),
		IntentStates:    NewIntentStatesRepo(),
		RelayCursors:    NewRelayCursorsRepo(),
	}
}

type intentKey struct {
	chainID  uint64
	intentID gmp.IntentID
}

type dedupKey struct {
	chainID  uint64
	intentID gmp.IntentID
	msgType  uint8
}

type outboxRepo struct {
	mu      sync.Mutex
	entries map[uint64][]*entity.OutboxEntry
}

func NewOutboxRepo() entity.OutboxRepo {
	return &outboxRepo{entries: make(map[uint64][]*entity.OutboxEntry)}
}

func (r *outboxRepo) Insert(_ context.Context, entry *entity.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	cp.Nonce = uint64(len(r.entries[entry.ChainID])) + 1
	r.entries[entry.ChainID] = append(r.entries[entry.ChainID], &cp)
	entry.Nonce = cp.Nonce
	return nil
}

func (r *outboxRepo) ListFrom(_ context.Context, chainID, fromNonce uint64, limit int) ([]*entity.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.OutboxEntry
	for _, e := range r.entries[chainID] {
		if e.Nonce >= fromNonce {
			cp := *e
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type deliveryRecordsRepo struct {
	mu   sync.Mutex
	recs map[dedupKey]*entity.DeliveryRecord
}

func NewDeliveryRecordsRepo() entity.DeliveryRecordsRepo {
	return &deliveryRecordsRepo{recs: make(map[dedupKey]*entity.DeliveryRecord)}
}

func (r *deliveryRecordsRepo) MarkDelivered(_ context.Context, rec *entity.DeliveryRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := dedupKey{rec.ChainID, rec.IntentID, rec.MsgType}
	if _, ok := r.recs[key]; ok {
		return false, nil
	}
	cp := *rec
	r.recs[key] = &cp
	return true, nil
}

func (r *deliveryRecordsRepo) IsDelivered(_ context.Context, chainID uint64, intentID gmp.IntentID, msgType uint8) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.recs[dedupKey{chainID, intentID, msgType}]
	return ok, nil
}

func (r *deliveryRecordsRepo) GetByIntentID(_ context.Context, intentID gmp.IntentID) ([]*entity.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.DeliveryRecord
	for _, rec := range r.recs {
		if rec.IntentID == intentID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MsgType < out[j].MsgType })
	return out, nil
}

type requirementsRepo struct {
	mu   sync.Mutex
	reqs map[intentKey]*entity.Requirements
}

func NewRequirementsRepo() entity.RequirementsRepo {
	return &requirementsRepo{reqs: make(map[intentKey]*entity.Requirements)}
}

func (r *requirementsRepo) Ensure(_ context.Context, req *entity.Requirements) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := intentKey{req.ChainID, req.IntentID}
	if _, ok := r.reqs[key]; ok {
		return false, nil
	}
	cp := *req
	r.reqs[key] = &cp
	return true, nil
}

func (r *requirementsRepo) GetByIntentID(_ context.Context, chainID uint64, intentID gmp.IntentID) (*entity.Requirements, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[intentKey{chainID, intentID}]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *requirementsRepo) MarkEscrowCreated(_ context.Context, chainID uint64, intentID gmp.IntentID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[intentKey{chainID, intentID}]
	if !ok || req.EscrowCreated {
		return false, nil
	}
	req.EscrowCreated = true
	return true, nil
}

func (r *requirementsRepo) UnmarkEscrowCreated(_ context.Context, chainID uint64, intentID gmp.IntentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.reqs[intentKey{chainID, intentID}]; ok {
		req.EscrowCreated = false
	}
	return nil
}

func (r *requirementsRepo) MarkFulfilled(_ context.Context, chainID uint64, intentID gmp.IntentID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[intentKey{chainID, intentID}]
	if !ok || req.Fulfilled {
		return false, nil
	}
	req.Fulfilled = true
	return true, nil
}

func (r *requirementsRepo) UnmarkFulfilled(_ context.Context, chainID uint64, intentID gmp.IntentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.reqs[intentKey{chainID, intentID}]; ok {
		req.Fulfilled = false
	}
	return nil
}

type escrowsRepo struct {
	mu      sync.Mutex
	escrows map[intentKey]*entity.Escrow
}

func NewEscrowsRepo() entity.EscrowsRepo {
	return &escrowsRepo{escrows: make(map[intentKey]*entity.Escrow)}
}

func (r *escrowsRepo) Insert(_ context.Context, escrow *entity.Escrow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := intentKey{escrow.ChainID, escrow.IntentID}
	if _, ok := r.escrows[key]; ok {
		return gmp.ErrEscrowAlreadyCreated
	}
	cp := *escrow
	r.escrows[key] = &cp
	return nil
}

func (r *escrowsRepo) GetByIntentID(_ context.Context, chainID uint64, intentID gmp.IntentID) (*entity.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	escrow, ok := r.escrows[intentKey{chainID, intentID}]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *escrow
	return &cp, nil
}

func (r *escrowsRepo) MarkFulfilled(_ context.Context, chainID uint64, intentID gmp.IntentID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	escrow, ok := r.escrows[intentKey{chainID, intentID}]
	if !ok || escrow.Fulfilled || escrow.Released {
		return false, nil
	}
	escrow.Fulfilled = true
	escrow.Released = true
	return true, nil
}

func (r *escrowsRepo) UnmarkFulfilled(_ context.Context, chainID uint64, intentID gmp.IntentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if escrow, ok := r.escrows[intentKey{chainID, intentID}]; ok && escrow.Fulfilled && escrow.Released {
		escrow.Fulfilled = false
		escrow.Released = false
	}
	return nil
}

func (r *escrowsRepo) MarkCancelled(_ context.Context, chainID uint64, intentID gmp.IntentID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	escrow, ok := r.escrows[intentKey{chainID, intentID}]
	if !ok || escrow.Released {
		return false, nil
	}
	escrow.Released = true
	return true, nil
}

func (r *escrowsRepo) UnmarkCancelled(_ context.Context, chainID uint64, intentID gmp.IntentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if escrow, ok := r.escrows[intentKey{chainID, intentID}]; ok && escrow.Released && !escrow.Fulfilled {
		escrow.Released = false
	}
	return nil
}

type intentStatesRepo struct {
	mu     sync.Mutex
	states map[gmp.IntentID]*entity.IntentGmpState
}

func NewIntentStatesRepo() entity.IntentStatesRepo {
	return &intentStatesRepo{states: make(map[gmp.IntentID]*entity.IntentGmpState)}
}

func (r *intentStatesRepo) Insert(_ context.Context, state *entity.IntentGmpState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[state.IntentID]; ok {
		return gmp.ErrIntentStateExists
	}
	cp := *state
	r.states[state.IntentID] = &cp
	return nil
}

func (r *intentStatesRepo) GetByIntentID(_ context.Context, intentID gmp.IntentID) (*entity.IntentGmpState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[intentID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *state
	return &cp, nil
}

func (r *intentStatesRepo) SetEscrowConfirmed(_ context.Context, intentID gmp.IntentID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[intentID]
	if !ok || state.EscrowConfirmed {
		return false, nil
	}
	state.EscrowConfirmed = true
	return true, nil
}

func (r *intentStatesRepo) SetFulfillmentProofReceived(_ context.Context, intentID gmp.IntentID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[intentID]
	if !ok || state.FulfillmentProofReceived {
		return false, nil
	}
	state.FulfillmentProofReceived = true
	return true, nil
}

func (r *intentStatesRepo) Delete(_ context.Context, intentID gmp.IntentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, intentID)
	return nil
}

type relayCursorsRepo struct {
	mu      sync.Mutex
	cursors map[uint64]*entity.RelayCursor
}

func NewRelayCursorsRepo() entity.RelayCursorsRepo {
	return &relayCursorsRepo{cursors: make(map[uint64]*entity.RelayCursor)}
}

func (r *relayCursorsRepo) Ensure(_ context.Context, cursor *entity.RelayCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cursor
	r.cursors[cursor.ChainID] = &cp
	return nil
}

func (r *relayCursorsRepo) GetByChainID(_ context.Context, chainID uint64) (*entity.RelayCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cursor, ok := r.cursors[chainID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *cursor
	return &cp, nil
}
