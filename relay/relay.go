// Package relay moves outbox messages between ledger endpoints. It trusts
// nothing about delivery outcomes beyond what the destination reports:
// endpoints deduplicate, so the relay is free to redeliver whenever unsure.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/ledger"
	"github.com/omni/intent-gmp/logging"
)

type Relay struct {
	ledgers  map[uint64]ledger.Ledger
	watchers []*Watcher
	cursors  entity.RelayCursorsRepo
	logger   logging.Logger
}

func NewRelay(cursors entity.RelayCursorsRepo, logger logging.Logger) *Relay {
	return &Relay{
		ledgers: make(map[uint64]ledger.Ledger),
		cursors: cursors,
		logger:  logger,
	}
}

// AddLedger registers a ledger both as a watched source and as a delivery
// destination.
func (r *Relay) AddLedger(l ledger.Ledger, pollInterval time.Duration) error {
	if _, ok := r.ledgers[l.ChainID()]; ok {
		return fmt.Errorf("chain %d is registered twice", l.ChainID())
	}
	r.ledgers[l.ChainID()] = l
	r.watchers = append(r.watchers, NewWatcher(l, r.resolve, r.cursors, pollInterval, r.logger))
	return nil
}

func (r *Relay) resolve(chainID uint64) ledger.Ledger {
	return r.ledgers[chainID]
}

// VerifyAuthorization checks the relay is allowed to deliver on every
// registered ledger. Called before Start; an unauthorized relay would only
// produce an endless stream of rejected submissions.
func (r *Relay) VerifyAuthorization(ctx context.Context) error {
	for _, l := range r.ledgers {
		authorized, err := l.IsRelayAuthorized(ctx)
		if err != nil {
			return fmt.Errorf("can't verify relay authorization on chain %d: %w", l.ChainID(), err)
		}
		if !authorized {
			return fmt.Errorf("relay %s is not authorized on chain %d", l.RelayAddress().Hex(), l.ChainID())
		}
		r.logger.WithField("chain", l.Name()).Info("relay authorization verified")
	}
	return nil
}

func (r *Relay) Start(ctx context.Context) {
	r.logger.Info("starting relay")
	for _, w := range r.watchers {
		go w.Start(ctx)
	}
}

// WatcherStatus is one watcher's health snapshot for the presenter.
type WatcherStatus struct {
	Chain   string `json:"chain"`
	Healthy bool   `json:"healthy"`
}

func (r *Relay) Status() []WatcherStatus {
	statuses := make([]WatcherStatus, 0, len(r.watchers))
	for _, w := range r.watchers {
		statuses = append(statuses, WatcherStatus{
			Chain:   w.Name(),
			Healthy: w.IsHealthy(),
		})
	}
	return statuses
}

func (r *Relay) IsHealthy() bool {
	for _, w := range r.watchers {
		if !w.IsHealthy() {
			return false
		}
	}
	return true
}
