package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/ledger"
	"github.com/omni/intent-gmp/logging"
	"github.com/omni/intent-gmp/utils"
)

const (
	defaultBatchLimit = 100
	maxBackoff        = 5 * time.Minute
)

// Watcher drives one source ledger: it polls the outbox past the persisted
// cursor and pushes each pending message to its destination ledger.
//
// Cursor rules: LastNonce advances for every delivered or permanently skipped
// message; LastBlock only advances once a scanned range fully went through, so
// a transient failure makes the next poll re-scan the same range. Redelivery
// is harmless under endpoint dedup.
type Watcher struct {
	src     ledger.Ledger
	resolve func(chainID uint64) ledger.Ledger

	cursors      entity.RelayCursorsRepo
	logger       logging.Logger
	pollInterval time.Duration
	batchLimit   int

	healthy atomic.Bool
}

func NewWatcher(
	src ledger.Ledger,
	resolve func(chainID uint64) ledger.Ledger,
	cursors entity.RelayCursorsRepo,
	pollInterval time.Duration,
	logger logging.Logger,
) *Watcher {
	return &Watcher{
		src:          src,
		resolve:      resolve,
		cursors:      cursors,
		logger:       logger.WithField("chain", src.Name()),
		pollInterval: pollInterval,
		batchLimit:   defaultBatchLimit,
	}
}

func (w *Watcher) Name() string {
	return w.src.Name()
}

func (w *Watcher) IsHealthy() bool {
	return w.healthy.Load()
}

func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("starting outbox watcher")
	backoff := w.pollInterval
	for {
		if err := w.poll(ctx); err != nil {
			w.healthy.Store(false)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			w.logger.WithError(err).WithField("retry_in", backoff).Error("poll failed, backing off")
		} else {
			w.healthy.Store(true)
			backoff = w.pollInterval
		}
		if utils.ContextSleep(ctx, backoff) == nil {
			return
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	cursor, err := w.loadCursor(ctx)
	if err != nil {
		return err
	}

	pendings, scannedTo, err := w.src.ListPending(ctx, cursor, w.batchLimit)
	if err != nil {
		return fmt.Errorf("can't list pending messages: %w", err)
	}
	srcLabel := strconv.FormatUint(w.src.ChainID(), 10)
	PendingMessages.WithLabelValues(srcLabel).Set(float64(len(pendings)))

	for _, p := range pendings {
		if err := w.deliver(ctx, cursor, p); err != nil {
			// Persist partial progress so completed messages are not retried,
			// keeping LastBlock so the range is re-scanned.
			if saveErr := w.saveCursor(ctx, cursor); saveErr != nil {
				w.logger.WithError(saveErr).Error("can't persist relay cursor")
			}
			return err
		}
	}

	if scannedTo > cursor.LastBlock {
		cursor.LastBlock = scannedTo
	}
	return w.saveCursor(ctx, cursor)
}

func (w *Watcher) deliver(ctx context.Context, cursor *entity.RelayCursor, p *ledger.Pending) error {
	logger := w.logger.WithFields(logrus.Fields{
		"dst_chain_id": p.DstChainID,
		"nonce":        p.Nonce,
	})
	srcLabel := strconv.FormatUint(p.SrcChainID, 10)
	dstLabel := strconv.FormatUint(p.DstChainID, 10)

	dst := w.resolve(p.DstChainID)
	if dst == nil {
		// Not deliverable with this configuration, never will be.
		logger.Error("message addressed to an unconfigured chain, skipping")
		SkippedMessages.WithLabelValues(srcLabel, dstLabel).Inc()
		w.advanceNonce(cursor, p.Nonce)
		return nil
	}

	timer := prometheus.NewTimer(SubmissionDuration.WithLabelValues(dstLabel))
	err := dst.SubmitDelivery(ctx, p)
	timer.ObserveDuration()

	switch {
	case err == nil:
		DeliveredMessages.WithLabelValues(srcLabel, dstLabel).Inc()
		logger.Info("message delivered")
	case Classify(err) == ClassPermanent:
		SkippedMessages.WithLabelValues(srcLabel, dstLabel).Inc()
		logger.WithError(err).Warn("permanent delivery rejection, skipping message")
	default:
		FailedDeliveries.WithLabelValues(srcLabel, dstLabel).Inc()
		return fmt.Errorf("can't deliver message with nonce %d to chain %d: %w", p.Nonce, p.DstChainID, err)
	}
	w.advanceNonce(cursor, p.Nonce)
	return nil
}

func (w *Watcher) advanceNonce(cursor *entity.RelayCursor, nonce uint64) {
	if nonce > cursor.LastNonce {
		cursor.LastNonce = nonce
	}
}

func (w *Watcher) loadCursor(ctx context.Context) (*entity.RelayCursor, error) {
	cursor, err := w.cursors.GetByChainID(ctx, w.src.ChainID())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return &entity.RelayCursor{ChainID: w.src.ChainID()}, nil
		}
		return nil, fmt.Errorf("can't load relay cursor: %w", err)
	}
	return cursor, nil
}

func (w *Watcher) saveCursor(ctx context.Context, cursor *entity.RelayCursor) error {
	if err := w.cursors.Ensure(ctx, cursor); err != nil {
		return fmt.Errorf("can't persist relay cursor: %w", err)
	}
	CursorNonce.WithLabelValues(strconv.FormatUint(cursor.ChainID, 10)).Set(float64(cursor.LastNonce))
	return nil
}
