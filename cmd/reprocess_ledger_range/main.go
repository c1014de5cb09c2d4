package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/omni/intent-gmp/config"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/ethclient"
	"github.com/omni/intent-gmp/ledger"
	"github.com/omni/intent-gmp/ledger/evm"
	"github.com/omni/intent-gmp/logging"
	"github.com/omni/intent-gmp/relay"
)

var (
	chainName = flag.String("chain", "", "name of the EVM chain to re-scan")
	fromBlock = flag.Uint64("fromBlock", 0, "starting block")
	toBlock   = flag.Uint64("toBlock", 0, "ending block")
)

// Re-scans an EVM outbox block range and redelivers every message found.
// Destination endpoints deduplicate, so redelivering already-processed
// messages is harmless.
func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile("config.yml")
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel.Level())

	if *chainName == "" {
		logger.Fatal("chain is not specified")
	}
	srcCfg, ok := cfg.Chains[*chainName]
	if !ok || srcCfg == nil {
		logger.WithField("chain", *chainName).Fatal("chain config for given chain is not found")
	}
	if !srcCfg.IsEVM() {
		logger.WithField("chain", *chainName).Fatal("only evm family chains can be re-scanned")
	}
	if *fromBlock < srcCfg.StartBlock {
		fromBlock = &srcCfg.StartBlock
	}
	if *toBlock == 0 {
		logger.Fatal("toBlock is not specified")
	}
	if *toBlock < *fromBlock {
		logger.WithFields(logrus.Fields{
			"from_block": *fromBlock,
			"to_block":   *toBlock,
		}).Fatal("toBlock is less than fromBlock")
	}

	masterKey, err := ledger.MasterKeyFromEnv(cfg.Relay.MasterKeyEnv)
	if err != nil {
		logger.WithError(err).Fatal("can't load relay key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		for range c {
			cancel()
			logger.Warn("caught CTRL-C, gracefully terminating")
			return
		}
	}()

	ledgers := make(map[uint64]*evm.Ledger, len(cfg.Chains))
	for name, chainCfg := range cfg.Chains {
		if !chainCfg.IsEVM() {
			continue
		}
		client, err2 := ethclient.NewClient(chainCfg.RPC.Host, chainCfg.RPC.Timeout.Duration(), strconv.FormatUint(chainCfg.ChainID, 10))
		if err2 != nil {
			logger.WithError(err2).WithField("chain", name).Fatal("can't dial rpc client")
		}
		ledgers[chainCfg.ChainID] = evm.New(name, chainCfg, client, masterKey, logger.WithField("chain", name))
	}
	src := ledgers[srcCfg.ChainID]

	cursor := &entity.RelayCursor{ChainID: srcCfg.ChainID, LastBlock: *fromBlock - 1}
	for cursor.LastBlock < *toBlock {
		pendings, scannedTo, err2 := src.ListPending(ctx, cursor, 100)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't list pending messages")
		}
		for _, p := range pendings {
			pendingLogger := logger.WithFields(logrus.Fields{
				"dst_chain_id": p.DstChainID,
				"nonce":        p.Nonce,
			})
			dst, found := ledgers[p.DstChainID]
			if !found {
				pendingLogger.Warn("destination is not an evm chain, leaving it to the running relay")
				continue
			}
			if err2 = dst.SubmitDelivery(ctx, p); err2 != nil {
				if relay.Classify(err2) == relay.ClassPermanent {
					pendingLogger.WithError(err2).Warn("permanent delivery rejection, skipping message")
					continue
				}
				pendingLogger.WithError(err2).Fatal("can't deliver message")
			}
			pendingLogger.Info("message delivered")
		}
		if scannedTo <= cursor.LastBlock {
			break
		}
		cursor.LastBlock = scannedTo
	}
}
