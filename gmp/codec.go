package gmp

import (
	"encoding/binary"
	"fmt"
)

// Message type discriminators. The tag is always the first payload byte, and
// every message type carries the intent id at bytes 1..33, so receivers can
// dispatch and deduplicate without a full decode.
const (
	TagIntentRequirements byte = 0x01
	TagEscrowConfirmation byte = 0x02
	TagFulfillmentProof   byte = 0x03
)

// Exact encoded sizes, including the tag byte.
const (
	IntentRequirementsSize = 145
	EscrowConfirmationSize = 137
	FulfillmentProofSize   = 81
)

// Message is one of the three fixed GMP wire payloads.
type Message interface {
	Tag() byte
	Intent() IntentID
	Encode() []byte
}

// IntentRequirements is issued by the hub and delivered to connected ledgers.
// It pins down what an escrow or an outflow fulfillment must look like.
type IntentRequirements struct {
	IntentID       IntentID
	RequesterAddr  Address
	AmountRequired uint64
	TokenAddr      Address
	SolverAddr     Address
	Expiry         uint64
}

// EscrowConfirmation is issued by a connected ledger once funds are locked.
type EscrowConfirmation struct {
	IntentID       IntentID
	EscrowID       [32]byte
	AmountEscrowed uint64
	TokenAddr      Address
	CreatorAddr    Address
}

// FulfillmentProof is issued by a connected ledger once a solver has pushed
// funds to the requester, or processed on one to release an escrow.
type FulfillmentProof struct {
	IntentID        IntentID
	SolverAddr      Address
	AmountFulfilled uint64
	Timestamp       uint64
}

func (m *IntentRequirements) Tag() byte        { return TagIntentRequirements }
func (m *IntentRequirements) Intent() IntentID { return m.IntentID }

func (m *EscrowConfirmation) Tag() byte        { return TagEscrowConfirmation }
func (m *EscrowConfirmation) Intent() IntentID { return m.IntentID }

func (m *FulfillmentProof) Tag() byte        { return TagFulfillmentProof }
func (m *FulfillmentProof) Intent() IntentID { return m.IntentID }

func (m *IntentRequirements) Encode() []byte {
	buf := make([]byte, IntentRequirementsSize)
	buf[0] = TagIntentRequirements
	copy(buf[1:33], m.IntentID[:])
	copy(buf[33:65], m.RequesterAddr[:])
	binary.BigEndian.PutUint64(buf[65:73], m.AmountRequired)
	copy(buf[73:105], m.TokenAddr[:])
	copy(buf[105:137], m.SolverAddr[:])
	binary.BigEndian.PutUint64(buf[137:145], m.Expiry)
	return buf
}

func (m *EscrowConfirmation) Encode() []byte {
	buf := make([]byte, EscrowConfirmationSize)
	buf[0] = TagEscrowConfirmation
	copy(buf[1:33], m.IntentID[:])
	copy(buf[33:65], m.EscrowID[:])
	binary.BigEndian.PutUint64(buf[65:73], m.AmountEscrowed)
	copy(buf[73:105], m.TokenAddr[:])
	copy(buf[105:137], m.CreatorAddr[:])
	return buf
}

func (m *FulfillmentProof) Encode() []byte {
	buf := make([]byte, FulfillmentProofSize)
	buf[0] = TagFulfillmentProof
	copy(buf[1:33], m.IntentID[:])
	copy(buf[33:65], m.SolverAddr[:])
	binary.BigEndian.PutUint64(buf[65:73], m.AmountFulfilled)
	binary.BigEndian.PutUint64(buf[73:81], m.Timestamp)
	return buf
}

// EncodedSize returns the exact payload length required for the given tag.
func EncodedSize(tag byte) (int, error) {
	switch tag {
	case TagIntentRequirements:
		return IntentRequirementsSize, nil
	case TagEscrowConfirmation:
		return EscrowConfirmationSize, nil
	case TagFulfillmentProof:
		return FulfillmentProofSize, nil
	default:
		return 0, fmt.Errorf("tag 0x%02x: %w", tag, ErrUnknownDiscriminator)
	}
}

// PeekType reads the discriminator without decoding the rest of the payload.
func PeekType(payload []byte) (byte, error) {
	if len(payload) == 0 {
		return 0, ErrInvalidLength
	}
	tag := payload[0]
	if _, err := EncodedSize(tag); err != nil {
		return 0, err
	}
	return tag, nil
}

// DedupKey is intent_id ++ tag, the 33-byte key making delivery idempotent.
func DedupKey(payload []byte) ([33]byte, error) {
	var key [33]byte
	tag, err := PeekType(payload)
	if err != nil {
		return key, err
	}
	size, _ := EncodedSize(tag)
	if len(payload) != size {
		return key, fmt.Errorf("tag 0x%02x expects %d bytes, got %d: %w", tag, size, len(payload), ErrInvalidLength)
	}
	copy(key[:32], payload[1:33])
	key[32] = tag
	return key, nil
}

// Decode is the exact left-inverse of Encode for all three message types.
func Decode(payload []byte) (Message, error) {
	tag, err := PeekType(payload)
	if err != nil {
		return nil, err
	}
	size, _ := EncodedSize(tag)
	if len(payload) != size {
		return nil, fmt.Errorf("tag 0x%02x expects %d bytes, got %d: %w", tag, size, len(payload), ErrInvalidLength)
	}
	switch tag {
	case TagIntentRequirements:
		m := &IntentRequirements{
			AmountRequired: binary.BigEndian.Uint64(payload[65:73]),
			Expiry:         binary.BigEndian.Uint64(payload[137:145]),
		}
		copy(m.IntentID[:], payload[1:33])
		copy(m.RequesterAddr[:], payload[33:65])
		copy(m.TokenAddr[:], payload[73:105])
		copy(m.SolverAddr[:], payload[105:137])
		return m, nil
	case TagEscrowConfirmation:
		m := &EscrowConfirmation{
			AmountEscrowed: binary.BigEndian.Uint64(payload[65:73]),
		}
		copy(m.IntentID[:], payload[1:33])
		copy(m.EscrowID[:], payload[33:65])
		copy(m.TokenAddr[:], payload[73:105])
		copy(m.CreatorAddr[:], payload[105:137])
		return m, nil
	default:
		m := &FulfillmentProof{
			AmountFulfilled: binary.BigEndian.Uint64(payload[65:73]),
			Timestamp:       binary.BigEndian.Uint64(payload[73:81]),
		}
		copy(m.IntentID[:], payload[1:33])
		copy(m.SolverAddr[:], payload[33:65])
		return m, nil
	}
}
