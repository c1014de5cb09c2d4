package gmp

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
)

// Address is a 32-byte ledger-agnostic account identifier. Ledger families with
// shorter native addresses (e.g. 20-byte EVM accounts) are left-padded with zeros.
type Address [32]byte

// IntentID is the 32-byte identifier shared by all messages about one intent.
type IntentID [32]byte

// ZeroAddress in a solver position means "any solver accepted".
var ZeroAddress Address

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (id IntentID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

func AddressFromBytes(b []byte) Address {
	var a Address
	copy(a[32-len(b):], b)
	return a
}

func IntentIDFromBytes(b []byte) IntentID {
	var id IntentID
	copy(id[32-len(b):], b)
	return id
}

func scan32(dst []byte, src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("can't scan %T into 32-byte value", src)
	}
	if len(b) != 32 {
		return fmt.Errorf("can't scan %d bytes into 32-byte value", len(b))
	}
	copy(dst, b)
	return nil
}

func (a Address) Value() (driver.Value, error) {
	return a[:], nil
}

func (a *Address) Scan(src interface{}) error {
	return scan32(a[:], src)
}

func (id IntentID) Value() (driver.Value, error) {
	return id[:], nil
}

func (id *IntentID) Scan(src interface{}) error {
	return scan32(id[:], src)
}
