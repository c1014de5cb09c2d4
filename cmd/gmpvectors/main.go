package main

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/logging"
)

type vector struct {
	Name    string `json:"name"`
	Encoded string `json:"encoded"`
}

func filled(b byte) (out [32]byte) {
	for i := range out {
		out[i] = b
	}
	return out
}

// Emits the shared codec test-vector fixture on stdout. Implementations on
// other execution environments encode against the same fixture.
func main() {
	logger := logging.New()

	msgs := []struct {
		name string
		msg  gmp.Message
	}{
		{"intent_requirements", &gmp.IntentRequirements{
			IntentID:       filled(0x11),
			RequesterAddr:  filled(0x22),
			AmountRequired: 1_000_000,
			TokenAddr:      filled(0x33),
			SolverAddr:     filled(0x44),
			Expiry:         2000,
		}},
		{"intent_requirements_any_solver", &gmp.IntentRequirements{
			IntentID:       filled(0xaa),
			RequesterAddr:  filled(0xbb),
			AmountRequired: 42,
			TokenAddr:      filled(0xcc),
			Expiry:         1_700_000_000,
		}},
		{"intent_requirements_zero", &gmp.IntentRequirements{}},
		{"intent_requirements_max", &gmp.IntentRequirements{
			IntentID:       filled(0xff),
			RequesterAddr:  filled(0xff),
			AmountRequired: ^uint64(0),
			TokenAddr:      filled(0xff),
			SolverAddr:     filled(0xff),
			Expiry:         ^uint64(0),
		}},
		{"escrow_confirmation", &gmp.EscrowConfirmation{
			IntentID:       filled(0x11),
			EscrowID:       filled(0x55),
			AmountEscrowed: 1_000_000,
			TokenAddr:      filled(0x33),
			CreatorAddr:    filled(0x22),
		}},
		{"escrow_confirmation_zero", &gmp.EscrowConfirmation{}},
		{"fulfillment_proof", &gmp.FulfillmentProof{
			IntentID:        filled(0x11),
			SolverAddr:      filled(0x44),
			AmountFulfilled: 1_000_000,
			Timestamp:       1234,
		}},
		{"fulfillment_proof_max", &gmp.FulfillmentProof{
			IntentID:        filled(0xff),
			SolverAddr:      filled(0xff),
			AmountFulfilled: ^uint64(0),
			Timestamp:       ^uint64(0),
		}},
	}

	vectors := make([]vector, 0, len(msgs))
	for _, m := range msgs {
		vectors = append(vectors, vector{
			Name:    m.name,
			Encoded: hexutil.Encode(m.msg.Encode()),
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vectors); err != nil {
		logger.WithError(err).Fatal("can't marshal vectors")
	}
	if _, err := buf.WriteTo(os.Stdout); err != nil {
		logger.WithError(err).Fatal("can't write vectors")
	}
}
