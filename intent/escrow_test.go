package intent_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omni/intent-gmp/endpoint"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/intent"
	"github.com/omni/intent-gmp/logging"
	"github.com/omni/intent-gmp/repository"
	"github.com/omni/intent-gmp/repository/memory"
)

const (
	hubChainID       = uint64(1)
	connectedChainID = uint64(100)
)

var (
	admin           = gmp.AddressFromBytes([]byte("admin"))
	vault           = gmp.AddressFromBytes([]byte("vault"))
	selfEndpoint    = gmp.AddressFromBytes([]byte("connected-endpoint"))
	hubEndpoint     = gmp.AddressFromBytes([]byte("hub-endpoint"))
	requester       = gmp.AddressFromBytes([]byte("requester"))
	solver          = gmp.AddressFromBytes([]byte("solver"))
	token           = gmp.AddressFromBytes([]byte("token"))
	wrongToken      = gmp.AddressFromBytes([]byte("wrong-token"))
	testIntent      = gmp.IntentIDFromBytes([]byte("intent-1"))
	otherTestIntent = gmp.IntentIDFromBytes([]byte("intent-2"))
)

type escrowFixture struct {
	repo    *repository.Repo
	tokens  *intent.BalanceBook
	handler *intent.EscrowHandler
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()
	repo := memory.NewRepo()
	logger := logging.New()
	ep := endpoint.New(connectedChainID, admin, repo.DeliveryRecords, logger)
	require.NoError(t, ep.SetRemoteEndpoint(admin, hubChainID, hubEndpoint))
	outbox := endpoint.NewOutbox(connectedChainID, repo.Outbox, logger)
	tokens := intent.NewBalanceBook()
	tokens.Mint(token, requester, 2_000_000)
	handler := intent.NewEscrowHandler(
		connectedChainID, hubChainID,
		admin, vault, selfEndpoint,
		repo.Requirements, repo.Escrows, tokens,
		outbox, ep, logger,
	)
	return &escrowFixture{repo: repo, tokens: tokens, handler: handler}
}

func testRequirements(intentID gmp.IntentID) *gmp.IntentRequirements {
	return &gmp.IntentRequirements{
		IntentID:       intentID,
		RequesterAddr:  requester,
		AmountRequired: 1_000_000,
		TokenAddr:      token,
		SolverAddr:     solver,
		Expiry:         2000,
	}
}

func (f *escrowFixture) balance(t *testing.T, tok, owner gmp.Address) uint64 {
	t.Helper()
	b, err := f.tokens.BalanceOf(context.Background(), tok, owner)
	require.NoError(t, err)
	return b
}

func TestCreateEscrow(t *testing.T) {
	t.Parallel()
	f := newEscrowFixture(t)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, testRequirements(testIntent)))

	escrow, err := f.handler.CreateEscrow(ctx, requester, testIntent, token, 1_000_000, 1500)
	require.NoError(t, err)
	require.Equal(t, requester, escrow.CreatorAddr)
	require.False(t, escrow.EscrowID == gmp.IntentID{})

	require.Equal(t, uint64(1_000_000), f.balance(t, token, vault))
	require.Equal(t, uint64(1_000_000), f.balance(t, token, requester))

	// The confirmation is queued for the hub.
	entries, err := f.repo.Outbox.ListFrom(ctx, connectedChainID, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, hubChainID, entries[0].DstChainID)
	require.Equal(t, hubEndpoint, entries[0].DstEndpoint)
	msg, err := gmp.Decode(entries[0].Payload)
	require.NoError(t, err)
	conf, ok := msg.(*gmp.EscrowConfirmation)
	require.True(t, ok)
	require.Equal(t, testIntent, conf.IntentID)
	require.Equal(t, uint64(1_000_000), conf.AmountEscrowed)
	require.Equal(t, requester, conf.CreatorAddr)

	// A second escrow for the same intent is refused.
	_, err = f.handler.CreateEscrow(ctx, requester, testIntent, token, 1_000_000, 1500)
	require.ErrorIs(t, err, gmp.ErrEscrowAlreadyCreated)
}

func TestCreateEscrowValidationOrder(t *testing.T) {
	t.Parallel()
	f := newEscrowFixture(t)
	ctx := context.Background()

	_, err := f.handler.CreateEscrow(ctx, requester, testIntent, token, 1_000_000, 1500)
	require.ErrorIs(t, err, gmp.ErrRequirementsNotFound)

	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, testRequirements(testIntent)))

	// Expiry outranks the amount/token/requester checks.
	_, err = f.handler.CreateEscrow(ctx, requester, testIntent, wrongToken, 999_999, 2001)
	require.ErrorIs(t, err, gmp.ErrIntentExpired)

	_, err = f.handler.CreateEscrow(ctx, requester, testIntent, wrongToken, 999_999, 2000)
	require.ErrorIs(t, err, gmp.ErrAmountMismatch)

	_, err = f.handler.CreateEscrow(ctx, requester, testIntent, wrongToken, 1_000_000, 2000)
	require.ErrorIs(t, err, gmp.ErrTokenMismatch)

	_, err = f.handler.CreateEscrow(ctx, solver, testIntent, token, 1_000_000, 2000)
	require.ErrorIs(t, err, gmp.ErrRequesterMismatch)
}

func TestDuplicateRequirementsIgnored(t *testing.T) {
	t.Parallel()
	f := newEscrowFixture(t)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, testRequirements(testIntent)))
	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, testRequirements(testIntent)))

	req, err := f.repo.Requirements.GetByIntentID(ctx, connectedChainID, testIntent)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), req.AmountRequired)
}

func TestReleaseOnFulfillmentProof(t *testing.T) {
	t.Parallel()
	f := newEscrowFixture(t)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, testRequirements(testIntent)))
	_, err := f.handler.CreateEscrow(ctx, requester, testIntent, token, 1_000_000, 1500)
	require.NoError(t, err)

	proof := &gmp.FulfillmentProof{
		IntentID:        testIntent,
		SolverAddr:      solver,
		AmountFulfilled: 1_000_000,
		Timestamp:       1600,
	}
	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, proof))
	require.Equal(t, uint64(1_000_000), f.balance(t, token, solver))
	require.Zero(t, f.balance(t, token, vault))

	// Replaying the proof must abort without moving funds again.
	err = f.handler.HandleMessage(ctx, hubChainID, proof)
	require.ErrorIs(t, err, gmp.ErrAlreadyFulfilled)
	require.Equal(t, uint64(1_000_000), f.balance(t, token, solver))
	require.Zero(t, f.balance(t, token, vault))
}

func TestReleaseWithoutEscrow(t *testing.T) {
	t.Parallel()
	f := newEscrowFixture(t)

	proof := &gmp.FulfillmentProof{IntentID: otherTestIntent, SolverAddr: solver}
	err := f.handler.HandleMessage(context.Background(), hubChainID, proof)
	require.ErrorIs(t, err, gmp.ErrEscrowNotFound)
}

func TestCancelEscrow(t *testing.T) {
	t.Parallel()
	f := newEscrowFixture(t)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, testRequirements(testIntent)))
	_, err := f.handler.CreateEscrow(ctx, requester, testIntent, token, 1_000_000, 1500)
	require.NoError(t, err)

	require.ErrorIs(t, f.handler.Cancel(ctx, requester, testIntent, 2001), gmp.ErrAdminOnly)
	require.ErrorIs(t, f.handler.Cancel(ctx, admin, testIntent, 2000), gmp.ErrNotYetExpired)

	require.NoError(t, f.handler.Cancel(ctx, admin, testIntent, 2001))
	require.Equal(t, uint64(2_000_000), f.balance(t, token, requester))
	require.Zero(t, f.balance(t, token, vault))

	// Cancelled means released; neither a repeat cancel nor a late proof pays out.
	require.ErrorIs(t, f.handler.Cancel(ctx, admin, testIntent, 2002), gmp.ErrAlreadyReleased)
	err = f.handler.HandleMessage(ctx, hubChainID, &gmp.FulfillmentProof{IntentID: testIntent, SolverAddr: solver})
	require.ErrorIs(t, err, gmp.ErrAlreadyFulfilled)
	require.Zero(t, f.balance(t, token, solver))
}

var errTokenLedgerDown = errors.New("token ledger unavailable")

// faultyTokenBook injects transfer failures on demand.
type faultyTokenBook struct {
	*intent.BalanceBook
	failTransfers bool
}

func (b *faultyTokenBook) Transfer(ctx context.Context, token, from, to gmp.Address, amount uint64) error {
	if b.failTransfers {
		return errTokenLedgerDown
	}
	return b.BalanceBook.Transfer(ctx, token, from, to, amount)
}

func newFaultyEscrowFixture(t *testing.T) (*escrowFixture, *faultyTokenBook) {
	t.Helper()
	repo := memory.NewRepo()
	logger := logging.New()
	ep := endpoint.New(connectedChainID, admin, repo.DeliveryRecords, logger)
	require.NoError(t, ep.SetRemoteEndpoint(admin, hubChainID, hubEndpoint))
	outbox := endpoint.NewOutbox(connectedChainID, repo.Outbox, logger)
	book := &faultyTokenBook{BalanceBook: intent.NewBalanceBook()}
	book.Mint(token, requester, 2_000_000)
	handler := intent.NewEscrowHandler(
		connectedChainID, hubChainID,
		admin, vault, selfEndpoint,
		repo.Requirements, repo.Escrows, book,
		outbox, ep, logger,
	)
	return &escrowFixture{repo: repo, tokens: book.BalanceBook, handler: handler}, book
}

func TestCreateEscrowRetryAfterFailedTransfer(t *testing.T) {
	t.Parallel()
	f := newEscrowFixture(t)
	ctx := context.Background()

	req := testRequirements(testIntent)
	req.AmountRequired = 3_000_000
	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, req))

	// The requester holds 2M, so the first lock attempt fails mid-way.
	_, err := f.handler.CreateEscrow(ctx, requester, testIntent, token, 3_000_000, 1500)
	require.ErrorIs(t, err, intent.ErrInsufficientBalance)

	stored, err := f.repo.Requirements.GetByIntentID(ctx, connectedChainID, testIntent)
	require.NoError(t, err)
	require.False(t, stored.EscrowCreated)

	// Once funded, the same call must go through.
	f.tokens.Mint(token, requester, 1_000_000)
	_, err = f.handler.CreateEscrow(ctx, requester, testIntent, token, 3_000_000, 1500)
	require.NoError(t, err)
	require.Equal(t, uint64(3_000_000), f.balance(t, token, vault))
}

func TestCreateEscrowConcurrent(t *testing.T) {
	t.Parallel()
	f := newEscrowFixture(t)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, testRequirements(testIntent)))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.handler.CreateEscrow(ctx, requester, testIntent, token, 1_000_000, 1500)
		}(i)
	}
	wg.Wait()

	// Exactly one caller wins the lock; the loser gets the duplicate error
	// and the vault holds the amount once.
	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
		} else if errors.Is(err, gmp.ErrEscrowAlreadyCreated) {
			lost++
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, 1, lost)
	require.Equal(t, uint64(1_000_000), f.balance(t, token, vault))
}

func TestReleaseRetryAfterFailedTransfer(t *testing.T) {
	t.Parallel()
	f, book := newFaultyEscrowFixture(t)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, testRequirements(testIntent)))
	_, err := f.handler.CreateEscrow(ctx, requester, testIntent, token, 1_000_000, 1500)
	require.NoError(t, err)

	proof := &gmp.FulfillmentProof{
		IntentID:        testIntent,
		SolverAddr:      solver,
		AmountFulfilled: 1_000_000,
		Timestamp:       1600,
	}
	book.failTransfers = true
	err = f.handler.HandleMessage(ctx, hubChainID, proof)
	require.ErrorIs(t, err, errTokenLedgerDown)

	// A failed payout must leave the escrow releasable.
	escrow, err := f.repo.Escrows.GetByIntentID(ctx, connectedChainID, testIntent)
	require.NoError(t, err)
	require.False(t, escrow.Fulfilled)
	require.False(t, escrow.Released)

	book.failTransfers = false
	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, proof))
	require.Equal(t, uint64(1_000_000), f.balance(t, token, solver))
	require.Zero(t, f.balance(t, token, vault))
}

func TestCancelRetryAfterFailedTransfer(t *testing.T) {
	t.Parallel()
	f, book := newFaultyEscrowFixture(t)
	ctx := context.Background()

	require.NoError(t, f.handler.HandleMessage(ctx, hubChainID, testRequirements(testIntent)))
	_, err := f.handler.CreateEscrow(ctx, requester, testIntent, token, 1_000_000, 1500)
	require.NoError(t, err)

	book.failTransfers = true
	err = f.handler.Cancel(ctx, admin, testIntent, 2001)
	require.ErrorIs(t, err, errTokenLedgerDown)

	// A failed refund must leave the escrow cancellable.
	escrow, err := f.repo.Escrows.GetByIntentID(ctx, connectedChainID, testIntent)
	require.NoError(t, err)
	require.False(t, escrow.Released)

	book.failTransfers = false
	require.NoError(t, f.handler.Cancel(ctx, admin, testIntent, 2001))
	require.Equal(t, uint64(2_000_000), f.balance(t, token, requester))
	require.Zero(t, f.balance(t, token, vault))
}

func TestEscrowHandlerRejectsForeignMessageTypes(t *testing.T) {
	t.Parallel()
	f := newEscrowFixture(t)

	err := f.handler.HandleMessage(context.Background(), hubChainID, &gmp.EscrowConfirmation{IntentID: testIntent})
	require.ErrorIs(t, err, gmp.ErrUnknownMessageType)
}
