package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/ledger"
	"github.com/omni/intent-gmp/logging"
	"github.com/omni/intent-gmp/repository/memory"
)

const (
	srcChainID = uint64(1)
	dstChainID = uint64(100)
)

type fakeLedger struct {
	chainID    uint64
	name       string
	authorized bool

	pendings  []*ledger.Pending
	scannedTo uint64
	listErr   error

	deliverErr map[uint64]error
	delivered  []uint64
}

func (f *fakeLedger) ChainID() uint64 { return f.chainID }
func (f *fakeLedger) Name() string    { return f.name }
func (f *fakeLedger) RelayAddress() gmp.Address {
	return gmp.AddressFromBytes([]byte("relay"))
}

func (f *fakeLedger) IsRelayAuthorized(_ context.Context) (bool, error) {
	return f.authorized, nil
}

func (f *fakeLedger) ListPending(_ context.Context, cursor *entity.RelayCursor, limit int) ([]*ledger.Pending, uint64, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []*ledger.Pending
	for _, p := range f.pendings {
		if p.Nonce > cursor.LastNonce {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, f.scannedTo, nil
}

func (f *fakeLedger) SubmitDelivery(_ context.Context, p *ledger.Pending) error {
	if err := f.deliverErr[p.Nonce]; err != nil {
		return err
	}
	f.delivered = append(f.delivered, p.Nonce)
	return nil
}

func pending(nonce uint64) *ledger.Pending {
	return &ledger.Pending{
		SrcChainID: srcChainID,
		DstChainID: dstChainID,
		Nonce:      nonce,
		Payload:    (&gmp.IntentRequirements{}).Encode(),
	}
}

func newTestWatcher(src *fakeLedger, dst *fakeLedger) (*Watcher, entity.RelayCursorsRepo) {
	cursors := memory.NewRelayCursorsRepo()
	resolve := func(chainID uint64) ledger.Ledger {
		if dst != nil && chainID == dst.chainID {
			return dst
		}
		return nil
	}
	return NewWatcher(src, resolve, cursors, time.Second, logging.New()), cursors
}

func TestWatcherDeliversAndAdvancesCursor(t *testing.T) {
	t.Parallel()
	src := &fakeLedger{
		chainID:   srcChainID,
		name:      "hub",
		pendings:  []*ledger.Pending{pending(1), pending(2), pending(3)},
		scannedTo: 50,
	}
	dst := &fakeLedger{chainID: dstChainID, name: "connected"}
	w, cursors := newTestWatcher(src, dst)

	require.NoError(t, w.poll(context.Background()))
	require.Equal(t, []uint64{1, 2, 3}, dst.delivered)

	cursor, err := cursors.GetByChainID(context.Background(), srcChainID)
	require.NoError(t, err)
	require.Equal(t, uint64(3), cursor.LastNonce)
	require.Equal(t, uint64(50), cursor.LastBlock)
}

func TestWatcherSkipsPermanentFailures(t *testing.T) {
	t.Parallel()
	src := &fakeLedger{
		chainID:   srcChainID,
		name:      "hub",
		pendings:  []*ledger.Pending{pending(1), pending(2), pending(3)},
		scannedTo: 50,
	}
	dst := &fakeLedger{
		chainID: dstChainID,
		name:    "connected",
		deliverErr: map[uint64]error{
			1: fmt.Errorf("execution reverted: %w", gmp.ErrUnknownRemoteEndpoint),
			2: fmt.Errorf("execution reverted: %w", ledger.ErrAlreadyDelivered),
		},
	}
	w, cursors := newTestWatcher(src, dst)

	// Permanent rejections must not wedge the queue behind them.
	require.NoError(t, w.poll(context.Background()))
	require.Equal(t, []uint64{3}, dst.delivered)

	cursor, err := cursors.GetByChainID(context.Background(), srcChainID)
	require.NoError(t, err)
	require.Equal(t, uint64(3), cursor.LastNonce)
	require.Equal(t, uint64(50), cursor.LastBlock)
}

func TestWatcherRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	src := &fakeLedger{
		chainID:   srcChainID,
		name:      "hub",
		pendings:  []*ledger.Pending{pending(1), pending(2), pending(3)},
		scannedTo: 50,
	}
	dst := &fakeLedger{
		chainID:    dstChainID,
		name:       "connected",
		deliverErr: map[uint64]error{2: errors.New("rpc timeout")},
	}
	w, cursors := newTestWatcher(src, dst)
	ctx := context.Background()

	require.Error(t, w.poll(ctx))
	require.Equal(t, []uint64{1}, dst.delivered)

	// Progress before the failure is persisted; the scan mark is not, so the
	// failed message is picked up again.
	cursor, err := cursors.GetByChainID(ctx, srcChainID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), cursor.LastNonce)
	require.Zero(t, cursor.LastBlock)

	delete(dst.deliverErr, 2)
	require.NoError(t, w.poll(ctx))
	require.Equal(t, []uint64{1, 2, 3}, dst.delivered)

	cursor, err = cursors.GetByChainID(ctx, srcChainID)
	require.NoError(t, err)
	require.Equal(t, uint64(3), cursor.LastNonce)
	require.Equal(t, uint64(50), cursor.LastBlock)
}

func TestWatcherSkipsUnconfiguredDestination(t *testing.T) {
	t.Parallel()
	src := &fakeLedger{
		chainID:   srcChainID,
		name:      "hub",
		pendings:  []*ledger.Pending{pending(1)},
		scannedTo: 10,
	}
	w, cursors := newTestWatcher(src, nil)

	require.NoError(t, w.poll(context.Background()))

	cursor, err := cursors.GetByChainID(context.Background(), srcChainID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), cursor.LastNonce)
}

func TestWatcherListFailure(t *testing.T) {
	t.Parallel()
	src := &fakeLedger{
		chainID: srcChainID,
		name:    "hub",
		listErr: errors.New("rpc unreachable"),
	}
	w, _ := newTestWatcher(src, nil)

	require.Error(t, w.poll(context.Background()))
	require.False(t, w.IsHealthy())
}

func TestRelayVerifyAuthorization(t *testing.T) {
	t.Parallel()
	src := &fakeLedger{chainID: srcChainID, name: "hub", authorized: true}
	dst := &fakeLedger{chainID: dstChainID, name: "connected", authorized: false}

	r := NewRelay(memory.NewRelayCursorsRepo(), logging.New())
	require.NoError(t, r.AddLedger(src, time.Second))
	require.NoError(t, r.AddLedger(dst, time.Second))
	require.Error(t, r.AddLedger(dst, time.Second))

	err := r.VerifyAuthorization(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not authorized")

	dst.authorized = true
	require.NoError(t, r.VerifyAuthorization(context.Background()))
	require.Len(t, r.Status(), 2)
}
