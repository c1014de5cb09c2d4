package relay

import (
	"errors"

	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/ledger"
)

type ErrorClass int

const (
	// ClassPermanent deliveries can never succeed; the relay skips them and
	// advances the cursor.
	ClassPermanent ErrorClass = iota
	// ClassTransient deliveries may succeed later; the cursor stays and the
	// message is retried next poll.
	ClassTransient
)

func (c ErrorClass) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "transient"
}

// Classify decides whether a delivery failure is worth retrying. Only
// rejections rooted in destination ledger state are permanent; everything
// else (RPC timeouts, submission failures) is assumed recoverable.
func Classify(err error) ErrorClass {
	if errors.Is(err, ledger.ErrAlreadyDelivered) || errors.Is(err, gmp.ErrUnknownRemoteEndpoint) {
		return ClassPermanent
	}
	return ClassTransient
}
