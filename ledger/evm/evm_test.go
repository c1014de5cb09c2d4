package evm_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/omni/intent-gmp/config"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/ledger/evm"
	"github.com/omni/intent-gmp/ledger/evm/abi"
	"github.com/omni/intent-gmp/logging"
)

const testRelayKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

// fakeClient serves canned logs and head height; write methods are unused by
// the scanning paths under test.
type fakeClient struct {
	head uint64
	logs []types.Log
}

func (c *fakeClient) BlockNumber(_ context.Context) (uint64, error) {
	return c.head, nil
}

func (c *fakeClient) FilterLogsSafe(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var out []types.Log
	for _, log := range c.logs {
		if log.BlockNumber >= q.FromBlock.Uint64() && log.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, log)
		}
	}
	return out, nil
}

func (c *fakeClient) CallContract(_ context.Context, _ ethereum.CallMsg) ([]byte, error) {
	return nil, nil
}

func (c *fakeClient) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return 0, nil
}

func (c *fakeClient) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (c *fakeClient) SendTransaction(_ context.Context, _ *types.Transaction) error {
	return nil
}

func (c *fakeClient) Signer() types.Signer {
	return types.NewLondonSigner(big.NewInt(100))
}

func messageSentLog(t *testing.T, outbox common.Address, nonce, block uint64, payload []byte) types.Log {
	t.Helper()
	dstEndpoint := [32]byte(gmp.AddressFromBytes([]byte("hub-endpoint")))
	sender := [32]byte(gmp.AddressFromBytes([]byte("connected-endpoint")))
	data, err := abi.GmpABI.Events["MessageSent"].Inputs.NonIndexed().Pack(
		uint64(1), dstEndpoint, sender, payload,
	)
	require.NoError(t, err)
	return types.Log{
		Address:     outbox,
		Topics:      []common.Hash{abi.MessageSentTopic, common.BigToHash(new(big.Int).SetUint64(nonce))},
		Data:        data,
		BlockNumber: block,
	}
}

func newTestLedger(t *testing.T, client *fakeClient) *evm.Ledger {
	t.Helper()
	key, err := crypto.HexToECDSA(testRelayKey)
	require.NoError(t, err)
	cfg := &config.ChainConfig{
		ChainID:            100,
		EndpointAddress:    "0x00000000000000000000000000000000000000e1",
		OutboxAddress:      "0x00000000000000000000000000000000000000b1",
		StartBlock:         1,
		BlockConfirmations: 5,
		MaxBlockRangeSize:  1000,
	}
	return evm.New("testchain", cfg, client, key, logging.New())
}

func TestListPending(t *testing.T) {
	t.Parallel()
	outbox := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	client := &fakeClient{
		head: 15,
		logs: []types.Log{
			messageSentLog(t, outbox, 1, 8, []byte("payload-1")),
		},
	}
	l := newTestLedger(t, client)

	pendings, scannedTo, err := l.ListPending(context.Background(), &entity.RelayCursor{ChainID: 100}, 100)
	require.NoError(t, err)
	// Head 15 minus 5 confirmations covers blocks 1..10.
	require.Equal(t, uint64(10), scannedTo)
	require.Len(t, pendings, 1)
	p := pendings[0]
	require.Equal(t, uint64(100), p.SrcChainID)
	require.Equal(t, uint64(1), p.DstChainID)
	require.Equal(t, uint64(1), p.Nonce)
	require.Equal(t, uint64(8), p.Block)
	require.Equal(t, gmp.AddressFromBytes([]byte("hub-endpoint")), p.DstEndpoint)
	require.Equal(t, gmp.AddressFromBytes([]byte("connected-endpoint")), p.Sender)
	require.Equal(t, []byte("payload-1"), p.Payload)
}

func TestListPendingHeadBehindConfirmations(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t, &fakeClient{head: 4})

	pendings, scannedTo, err := l.ListPending(context.Background(), &entity.RelayCursor{ChainID: 100, LastBlock: 3}, 100)
	require.NoError(t, err)
	require.Empty(t, pendings)
	require.Equal(t, uint64(3), scannedTo)
}

func TestListPendingLimitResumesWithinBlock(t *testing.T) {
	t.Parallel()
	outbox := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	client := &fakeClient{
		head: 15,
		logs: []types.Log{
			messageSentLog(t, outbox, 1, 10, []byte("payload-1")),
			messageSentLog(t, outbox, 2, 10, []byte("payload-2")),
		},
	}
	l := newTestLedger(t, client)
	ctx := context.Background()

	// Both messages share block 10 and the limit cuts the scan after the
	// first. The scan mark must stay short of the block so the second one
	// is found on the next pass.
	cursor := &entity.RelayCursor{ChainID: 100}
	pendings, scannedTo, err := l.ListPending(ctx, cursor, 1)
	require.NoError(t, err)
	require.Len(t, pendings, 1)
	require.Equal(t, uint64(1), pendings[0].Nonce)
	require.Equal(t, uint64(9), scannedTo)

	cursor = &entity.RelayCursor{ChainID: 100, LastNonce: 1, LastBlock: scannedTo}
	pendings, scannedTo, err = l.ListPending(ctx, cursor, 1)
	require.NoError(t, err)
	require.Len(t, pendings, 1)
	require.Equal(t, uint64(2), pendings[0].Nonce)
	require.Equal(t, uint64(9), scannedTo)

	// Once both messages are done the scan walks past the block.
	cursor = &entity.RelayCursor{ChainID: 100, LastNonce: 2, LastBlock: scannedTo}
	pendings, scannedTo, err = l.ListPending(ctx, cursor, 1)
	require.NoError(t, err)
	require.Empty(t, pendings)
	require.Equal(t, uint64(10), scannedTo)
}
