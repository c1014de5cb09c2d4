package ledger

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/omni/intent-gmp/gmp"
)

// MasterKeyFromEnv reads and parses the relay's secp256k1 key from the named
// environment variable. Missing or malformed key material is fatal at startup.
func MasterKeyFromEnv(envName string) (*ecdsa.PrivateKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(os.Getenv(envName)), "0x")
	if raw == "" {
		return nil, fmt.Errorf("env variable %s with the relay key is not set", envName)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("can't parse relay key from %s: %w", envName, err)
	}
	return key, nil
}

// DeriveEVMAddress is the standard Ethereum address of the key, widened to 32
// bytes for the wire format.
func DeriveEVMAddress(key *ecdsa.PrivateKey) gmp.Address {
	return EVMToGMP(crypto.PubkeyToAddress(key.PublicKey))
}

// DeriveNativeAddress is the Keccak-256 hash of the uncompressed public key,
// the full 32 bytes rather than the EVM 20-byte suffix.
func DeriveNativeAddress(key *ecdsa.PrivateKey) gmp.Address {
	pub := crypto.FromECDSAPub(&key.PublicKey)
	return gmp.AddressFromBytes(crypto.Keccak256(pub[1:]))
}

// EVMToGMP left-pads a 20-byte EVM address to the 32-byte wire form.
func EVMToGMP(addr common.Address) gmp.Address {
	return gmp.AddressFromBytes(addr.Bytes())
}

// GMPToEVM takes the low 20 bytes of a wire address.
func GMPToEVM(addr gmp.Address) common.Address {
	return common.BytesToAddress(addr[12:])
}
