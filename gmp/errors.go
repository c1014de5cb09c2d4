package gmp

import "errors"

// Codec errors.
var (
	ErrInvalidLength        = errors.New("payload length does not match message type")
	ErrUnknownDiscriminator = errors.New("unknown message type discriminator")
)

// Endpoint errors.
var (
	ErrUnauthorized          = errors.New("caller is not an authorized relay")
	ErrNoRemoteEndpoint      = errors.New("no remote endpoint configured for source chain")
	ErrUnknownRemoteEndpoint = errors.New("unknown remote endpoint for source chain")
	ErrUnknownMessageType    = errors.New("no handler registered for message type")
	ErrAdminOnly             = errors.New("caller is not the endpoint admin")
)

// Connected-ledger handler errors.
var (
	ErrRequirementsNotFound = errors.New("intent requirements not found")
	ErrEscrowAlreadyCreated = errors.New("escrow already created for intent")
	ErrIntentExpired        = errors.New("intent expired")
	ErrAmountMismatch       = errors.New("escrow amount does not match required amount")
	ErrTokenMismatch        = errors.New("token does not match required token")
	ErrRequesterMismatch    = errors.New("caller is not the intent requester")
	ErrEscrowNotFound       = errors.New("escrow not found")
	ErrAlreadyFulfilled     = errors.New("intent already fulfilled")
	ErrUnauthorizedSolver   = errors.New("caller is not the designated solver")
	ErrNotYetExpired        = errors.New("intent has not expired yet")
	ErrAlreadyReleased      = errors.New("escrowed funds already released")
)

// Hub state errors.
var (
	ErrIntentStateNotFound         = errors.New("intent gmp state not found")
	ErrIntentStateExists           = errors.New("intent gmp state already exists")
	ErrEscrowNotConfirmedYet       = errors.New("escrow confirmation not received yet")
	ErrFulfillmentProofNotReceived = errors.New("fulfillment proof not received yet")
)
