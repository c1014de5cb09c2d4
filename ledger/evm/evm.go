// Package evm adapts contract-hosted endpoints and outboxes to the relay's
// Ledger interface. Outbox entries are read as MessageSent logs; deliveries
// are submitted as signed transactions to the endpoint contract.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/omni/intent-gmp/config"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/ethclient"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/ledger"
	"github.com/omni/intent-gmp/ledger/evm/abi"
	"github.com/omni/intent-gmp/logging"
)

const deliverGasLimit = 500_000

type Ledger struct {
	chainID            uint64
	name               string
	endpointAddr       common.Address
	outboxAddr         common.Address
	startBlock         uint64
	blockConfirmations uint64
	maxBlockRangeSize  uint64

	client ethclient.Client
	key    *ecdsa.PrivateKey
	relay  common.Address
	logger logging.Logger

	// One in-flight transaction per ledger keeps account nonces sequential.
	submitMu sync.Mutex
}

func New(name string, cfg *config.ChainConfig, client ethclient.Client, key *ecdsa.PrivateKey, logger logging.Logger) *Ledger {
	return &Ledger{
		chainID:            cfg.ChainID,
		name:               name,
		endpointAddr:       common.HexToAddress(cfg.EndpointAddress),
		outboxAddr:         common.HexToAddress(cfg.OutboxAddress),
		startBlock:         cfg.StartBlock,
		blockConfirmations: cfg.BlockConfirmations,
		maxBlockRangeSize:  cfg.MaxBlockRangeSize,
		client:             client,
		key:                key,
		relay:              crypto.PubkeyToAddress(key.PublicKey),
		logger:             logger,
	}
}

func (l *Ledger) ChainID() uint64 {
	return l.chainID
}

func (l *Ledger) Name() string {
	return l.name
}

func (l *Ledger) RelayAddress() gmp.Address {
	return ledger.EVMToGMP(l.relay)
}

func (l *Ledger) ListPending(ctx context.Context, cursor *entity.RelayCursor, limit int) ([]*ledger.Pending, uint64, error) {
	head, err := l.client.BlockNumber(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("can't get head block: %w", err)
	}
	if head < l.blockConfirmations {
		return nil, cursor.LastBlock, nil
	}
	safeHead := head - l.blockConfirmations

	fromBlock := l.startBlock
	if cursor.LastBlock >= fromBlock {
		fromBlock = cursor.LastBlock + 1
	}
	if fromBlock > safeHead {
		return nil, cursor.LastBlock, nil
	}
	toBlock := fromBlock + l.maxBlockRangeSize - 1
	if toBlock > safeHead {
		toBlock = safeHead
	}

	logs, err := l.client.FilterLogsSafe(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{l.outboxAddr},
		Topics:    [][]common.Hash{{abi.MessageSentTopic}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("can't filter outbox logs: %w", err)
	}

	pendings := make([]*ledger.Pending, 0, len(logs))
	for i := range logs {
		p, err := l.parseMessageSent(&logs[i])
		if err != nil {
			return nil, 0, fmt.Errorf("can't parse outbox log in tx %s: %w", logs[i].TxHash, err)
		}
		// Ranges may be re-scanned after transient failures; the nonce cursor
		// filters out messages that already went through.
		if p.Nonce <= cursor.LastNonce {
			continue
		}
		pendings = append(pendings, p)
		if len(pendings) == limit {
			// The cut-off block may hold more logs, so mark only up to the
			// block before it; the nonce cursor skips the ones already done
			// when the block is scanned again.
			return pendings, p.Block - 1, nil
		}
	}
	return pendings, toBlock, nil
}

func (l *Ledger) parseMessageSent(log *types.Log) (*ledger.Pending, error) {
	if len(log.Topics) != 2 {
		return nil, fmt.Errorf("expected 2 topics, got %d", len(log.Topics))
	}
	values, err := abi.GmpABI.Unpack("MessageSent", log.Data)
	if err != nil {
		return nil, fmt.Errorf("can't unpack event data: %w", err)
	}
	dstChainID, ok := values[0].(uint64)
	if !ok {
		return nil, fmt.Errorf("unexpected dstChainId type %T", values[0])
	}
	dstEndpoint, ok := values[1].([32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected dstEndpoint type %T", values[1])
	}
	sender, ok := values[2].([32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected sender type %T", values[2])
	}
	payload, ok := values[3].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", values[3])
	}
	return &ledger.Pending{
		SrcChainID:  l.chainID,
		SrcEndpoint: ledger.EVMToGMP(l.endpointAddr),
		DstChainID:  dstChainID,
		DstEndpoint: gmp.Address(dstEndpoint),
		Nonce:       new(big.Int).SetBytes(log.Topics[1][:]).Uint64(),
		Block:       log.BlockNumber,
		Sender:      gmp.Address(sender),
		Payload:     payload,
	}, nil
}

func (l *Ledger) SubmitDelivery(ctx context.Context, p *ledger.Pending) error {
	var srcEndpoint [32]byte = p.SrcEndpoint
	data, err := abi.GmpABI.Pack("deliver", p.SrcChainID, srcEndpoint, p.Payload)
	if err != nil {
		return fmt.Errorf("can't encode deliver calldata: %w", err)
	}

	// Simulate first: contract rejections surface as revert reasons here
	// instead of burning gas on a failing transaction.
	if _, err = l.client.CallContract(ctx, ethereum.CallMsg{
		From: l.relay,
		To:   &l.endpointAddr,
		Data: data,
	}); err != nil {
		return classifyRevert(err)
	}

	l.submitMu.Lock()
	defer l.submitMu.Unlock()

	nonce, err := l.client.PendingNonceAt(ctx, l.relay)
	if err != nil {
		return fmt.Errorf("can't get account nonce: %w", err)
	}
	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("can't get gas price: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &l.endpointAddr,
		Gas:      deliverGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signedTx, err := types.SignTx(tx, l.client.Signer(), l.key)
	if err != nil {
		return fmt.Errorf("can't sign delivery transaction: %w", err)
	}
	if err = l.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("can't send delivery transaction: %w", err)
	}
	l.logger.WithField("tx_hash", signedTx.Hash().Hex()).Debug("delivery transaction sent")
	return nil
}

func (l *Ledger) IsRelayAuthorized(ctx context.Context) (bool, error) {
	data, err := abi.GmpABI.Pack("isRelayAuthorized", l.relay)
	if err != nil {
		return false, fmt.Errorf("can't encode calldata: %w", err)
	}
	res, err := l.client.CallContract(ctx, ethereum.CallMsg{
		To:   &l.endpointAddr,
		Data: data,
	})
	if err != nil {
		return false, fmt.Errorf("can't call isRelayAuthorized: %w", err)
	}
	values, err := abi.GmpABI.Unpack("isRelayAuthorized", res)
	if err != nil {
		return false, fmt.Errorf("can't decode isRelayAuthorized result: %w", err)
	}
	authorized, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isRelayAuthorized result type %T", values[0])
	}
	return authorized, nil
}

// classifyRevert maps endpoint contract revert reasons onto the shared
// sentinels the relay classifies on.
func classifyRevert(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already delivered"):
		return fmt.Errorf("%s: %w", err, ledger.ErrAlreadyDelivered)
	case strings.Contains(msg, "unknown remote endpoint"):
		return fmt.Errorf("%s: %w", err, gmp.ErrUnknownRemoteEndpoint)
	case strings.Contains(msg, "no remote endpoint"):
		return fmt.Errorf("%s: %w", err, gmp.ErrNoRemoteEndpoint)
	case strings.Contains(msg, "unauthorized relay"):
		return fmt.Errorf("%s: %w", err, gmp.ErrUnauthorized)
	default:
		return fmt.Errorf("delivery simulation failed: %w", err)
	}
}
