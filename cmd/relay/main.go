package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omni/intent-gmp/config"
	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/endpoint"
	"github.com/omni/intent-gmp/ethclient"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/intent"
	"github.com/omni/intent-gmp/ledger"
	"github.com/omni/intent-gmp/ledger/evm"
	"github.com/omni/intent-gmp/ledger/native"
	"github.com/omni/intent-gmp/logging"
	"github.com/omni/intent-gmp/presenter"
	"github.com/omni/intent-gmp/relay"
	"github.com/omni/intent-gmp/repository"
)

// nativeRuntime bundles the in-process pieces of one native-family ledger
// until cross-chain wiring can happen in a second pass.
type nativeRuntime struct {
	name         string
	cfg          *config.ChainConfig
	endpointAddr gmp.Address
	ep           *endpoint.Endpoint
	outbox       *endpoint.Outbox
	ledger       *native.Ledger
}

func main() {
	_ = godotenv.Load()
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile("config.yml")
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel.Level())

	dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database and apply migrations")
	}
	defer dbConn.Close()

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		err2 := http.ListenAndServe(":2112", nil)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't start listener for prometheus metrics")
		}
	}()

	repo := repository.NewRepo(dbConn)

	masterKey, err := ledger.MasterKeyFromEnv(cfg.Relay.MasterKeyEnv)
	if err != nil {
		logger.WithError(err).Fatal("can't load relay key")
	}
	relayNativeAddr := ledger.DeriveNativeAddress(masterKey)
	admin := gmp.AddressFromBytes(common.FromHex(cfg.Relay.AdminAddress))

	rl := relay.NewRelay(repo.RelayCursors, logger.WithField("service", "relay"))

	natives := make(map[string]*nativeRuntime, len(cfg.Chains))
	for name, chainCfg := range cfg.Chains {
		chainLogger := logger.WithField("chain", name)
		if chainCfg.IsEVM() {
			client, err2 := ethclient.NewClient(chainCfg.RPC.Host, chainCfg.RPC.Timeout.Duration(), strconv.FormatUint(chainCfg.ChainID, 10))
			if err2 != nil {
				chainLogger.WithError(err2).Fatal("can't dial rpc client")
			}
			l := evm.New(name, chainCfg, client, masterKey, chainLogger)
			if err2 = rl.AddLedger(l, chainCfg.PollInterval.Duration()); err2 != nil {
				chainLogger.WithError(err2).Fatal("can't register ledger")
			}
			continue
		}

		endpointAddr := nativeAddress(chainCfg, name, "endpoint")
		ep := endpoint.New(chainCfg.ChainID, admin, repo.DeliveryRecords, chainLogger.WithField("service", "endpoint"))
		outbox := endpoint.NewOutbox(chainCfg.ChainID, repo.Outbox, chainLogger.WithField("service", "outbox"))
		if err = ep.AddRelay(admin, relayNativeAddr); err != nil {
			chainLogger.WithError(err).Fatal("can't authorize relay on endpoint")
		}
		l := native.New(chainCfg.ChainID, name, endpointAddr, relayNativeAddr, repo.Outbox, ep)
		natives[name] = &nativeRuntime{
			name:         name,
			cfg:          chainCfg,
			endpointAddr: endpointAddr,
			ep:           ep,
			outbox:       outbox,
			ledger:       l,
		}
		if err = rl.AddLedger(l, chainCfg.PollInterval.Duration()); err != nil {
			chainLogger.WithError(err).Fatal("can't register ledger")
		}
	}

	// Second pass: every native endpoint learns the endpoint addresses of all
	// other chains, and the hub/connected handlers are attached.
	hub := natives[cfg.HubChain]
	for name, rt := range natives {
		for otherName, otherCfg := range cfg.Chains {
			if otherName == name {
				continue
			}
			remote := nativeAddress(otherCfg, otherName, "endpoint")
			if otherCfg.IsEVM() {
				remote = ledger.EVMToGMP(common.HexToAddress(otherCfg.EndpointAddress))
			}
			if err = rt.ep.AddRemoteEndpoint(admin, otherCfg.ChainID, remote); err != nil {
				logger.WithError(err).Fatal("can't register remote endpoint")
			}
		}
	}

	hubState := intent.NewHubState(
		hub.cfg.ChainID,
		hub.endpointAddr,
		repo.IntentStates,
		hub.outbox,
		hub.ep,
		logger.WithField("service", "hub"),
	)
	hub.ep.RegisterHandler(gmp.TagEscrowConfirmation, hubState)
	hub.ep.RegisterHandler(gmp.TagFulfillmentProof, hubState)

	for name, rt := range natives {
		if name == cfg.HubChain {
			continue
		}
		chainLogger := logger.WithField("chain", name)
		tokens := intent.NewBalanceBook()
		escrowHandler := intent.NewEscrowHandler(
			rt.cfg.ChainID, hub.cfg.ChainID,
			admin, nativeAddress(rt.cfg, name, "vault"), rt.endpointAddr,
			repo.Requirements, repo.Escrows, tokens,
			rt.outbox, rt.ep,
			chainLogger.WithField("service", "escrow"),
		)
		rt.ep.RegisterHandler(gmp.TagIntentRequirements, escrowHandler)
		rt.ep.RegisterHandler(gmp.TagFulfillmentProof, escrowHandler)

		outflow := intent.NewOutflowValidator(
			rt.cfg.ChainID, hub.cfg.ChainID,
			rt.endpointAddr,
			repo.Requirements, tokens,
			rt.outbox, rt.ep,
			chainLogger.WithField("service", "outflow"),
		)
		rt.ep.RegisterHandler(gmp.TagIntentRequirements, outflow)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err = rl.VerifyAuthorization(ctx); err != nil {
		logger.WithError(err).Fatal("relay authorization check failed")
	}
	rl.Start(ctx)

	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger.WithField("service", "presenter"), repo, rl)
		go func() {
			err2 := pr.Serve(cfg.Presenter.Host)
			if err2 != nil {
				logger.WithError(err2).Fatal("can't serve presenter")
			}
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	for range c {
		cancel()
		logger.Warn("caught CTRL-C, gracefully terminating")
		return
	}
}

// nativeAddress is the deterministic 32-byte address of a named in-process
// component, or the configured endpoint address when one is set.
func nativeAddress(cfg *config.ChainConfig, chainName, component string) gmp.Address {
	if component == "endpoint" && cfg.EndpointAddress != "" {
		return gmp.AddressFromBytes(common.FromHex(cfg.EndpointAddress))
	}
	return gmp.AddressFromBytes(crypto.Keccak256([]byte(chainName + "/" + component)))
}
