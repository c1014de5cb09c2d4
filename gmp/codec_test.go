package gmp_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omni/intent-gmp/gmp"
)

func filled(b byte) (out [32]byte) {
	for i := range out {
		out[i] = b
	}
	return out
}

func TestEncodeIntentRequirements(t *testing.T) {
	t.Parallel()

	msg := &gmp.IntentRequirements{
		IntentID:       filled(0x11),
		RequesterAddr:  filled(0x22),
		AmountRequired: 1_000_000,
		TokenAddr:      filled(0x33),
		SolverAddr:     filled(0x44),
		Expiry:         2000,
	}
	payload := msg.Encode()
	require.Len(t, payload, gmp.IntentRequirementsSize)
	require.Equal(t, gmp.TagIntentRequirements, payload[0])
	require.Equal(t, gmp.IntentID(filled(0x11)), gmp.IntentIDFromBytes(payload[1:33]))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0x0f, 0x42, 0x40}, payload[65:73])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x07, 0xd0}, payload[137:145])

	decoded, err := gmp.Decode(payload)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, msg := range []gmp.Message{
		&gmp.IntentRequirements{
			IntentID:       filled(0xaa),
			RequesterAddr:  filled(0xbb),
			AmountRequired: 42,
			TokenAddr:      filled(0xcc),
			Expiry:         1_700_000_000,
		},
		&gmp.IntentRequirements{},
		&gmp.EscrowConfirmation{
			IntentID:       filled(0x11),
			EscrowID:       filled(0x55),
			AmountEscrowed: ^uint64(0),
			TokenAddr:      filled(0x33),
			CreatorAddr:    filled(0x22),
		},
		&gmp.EscrowConfirmation{},
		&gmp.FulfillmentProof{
			IntentID:        filled(0x11),
			SolverAddr:      filled(0x44),
			AmountFulfilled: 1_000_000,
			Timestamp:       1234,
		},
		&gmp.FulfillmentProof{},
	} {
		payload := msg.Encode()
		decoded, err := gmp.Decode(payload)
		require.NoError(t, err)
		require.Equal(t, msg, decoded)
		require.Equal(t, payload, decoded.Encode())
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name     string
		payload  []byte
		expected error
	}{
		{"empty", nil, gmp.ErrInvalidLength},
		{"unknown tag", append([]byte{0x04}, make([]byte, 144)...), gmp.ErrUnknownDiscriminator},
		{"zero tag", make([]byte, 145), gmp.ErrUnknownDiscriminator},
		{"truncated requirements", (&gmp.IntentRequirements{}).Encode()[:144], gmp.ErrInvalidLength},
		{"oversized proof", append((&gmp.FulfillmentProof{}).Encode(), 0), gmp.ErrInvalidLength},
		{"confirmation with proof size", append([]byte{0x02}, make([]byte, 80)...), gmp.ErrInvalidLength},
	} {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := gmp.Decode(test.payload)
			require.ErrorIs(t, err, test.expected)
			_, err = gmp.DedupKey(test.payload)
			require.ErrorIs(t, err, test.expected)
		})
	}
}

func TestDedupKey(t *testing.T) {
	t.Parallel()

	req := &gmp.IntentRequirements{IntentID: filled(0x11)}
	proof := &gmp.FulfillmentProof{IntentID: filled(0x11)}

	reqKey, err := gmp.DedupKey(req.Encode())
	require.NoError(t, err)
	proofKey, err := gmp.DedupKey(proof.Encode())
	require.NoError(t, err)

	// Same intent, different message types: distinct keys sharing the prefix.
	require.NotEqual(t, reqKey, proofKey)
	require.Equal(t, reqKey[:32], proofKey[:32])
	require.Equal(t, gmp.TagIntentRequirements, reqKey[32])
	require.Equal(t, gmp.TagFulfillmentProof, proofKey[32])
	require.Equal(t, gmp.IntentID(filled(0x11)), gmp.IntentIDFromBytes(reqKey[:32]))
}

func TestPeekType(t *testing.T) {
	t.Parallel()

	tag, err := gmp.PeekType((&gmp.EscrowConfirmation{}).Encode())
	require.NoError(t, err)
	require.Equal(t, gmp.TagEscrowConfirmation, tag)

	_, err = gmp.PeekType([]byte{})
	require.ErrorIs(t, err, gmp.ErrInvalidLength)
	_, err = gmp.PeekType([]byte{0x99})
	require.ErrorIs(t, err, gmp.ErrUnknownDiscriminator)
}

func TestCodecVectors(t *testing.T) {
	t.Parallel()

	blob, err := os.ReadFile("testdata/codec_vectors.json")
	require.NoError(t, err)

	var vectors []struct {
		Name    string `json:"name"`
		Encoded string `json:"encoded"`
	}
	require.NoError(t, json.Unmarshal(blob, &vectors))
	require.NotEmpty(t, vectors)

	for _, v := range vectors {
		v := v
		t.Run(v.Name, func(t *testing.T) {
			t.Parallel()
			payload, err := hexutil.Decode(v.Encoded)
			require.NoError(t, err)
			msg, err := gmp.Decode(payload)
			require.NoError(t, err)
			require.Equal(t, payload, msg.Encode())
			key, err := gmp.DedupKey(payload)
			require.NoError(t, err)
			require.Equal(t, payload[1:33], key[:32])
			require.Equal(t, payload[0], key[32])
		})
	}
}
