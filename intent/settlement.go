package intent

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/logging"
)

// Settlement concludes one intent. It is handed out by the hub's gated entry
// points and must reach Finish exactly once; dropping it leaves the intent
// state row behind and is reported by a runtime guard.
type Settlement struct {
	intentID gmp.IntentID
	states   entity.IntentStatesRepo
	logger   logging.Logger
	done     atomic.Bool
}

func newSettlement(intentID gmp.IntentID, states entity.IntentStatesRepo, logger logging.Logger) *Settlement {
	s := &Settlement{
		intentID: intentID,
		states:   states,
		logger:   logger,
	}
	runtime.SetFinalizer(s, func(leaked *Settlement) {
		if !leaked.done.Load() {
			leaked.logger.WithField("intent_id", leaked.intentID.Hex()).
				Error("settlement dropped without finish, intent state row left behind")
		}
	})
	return s
}

func (s *Settlement) IntentID() gmp.IntentID {
	return s.intentID
}

// Finish concludes the intent and deletes its state row. Safe to call at most
// once; a second call reports the misuse.
func (s *Settlement) Finish(ctx context.Context) error {
	if !s.done.CompareAndSwap(false, true) {
		return fmt.Errorf("settlement for intent %s already finished", s.intentID.Hex())
	}
	runtime.SetFinalizer(s, nil)
	if err := s.states.Delete(ctx, s.intentID); err != nil {
		return fmt.Errorf("can't delete intent state: %w", err)
	}
	s.logger.WithField("intent_id", s.intentID.Hex()).Info("intent concluded")
	return nil
}
