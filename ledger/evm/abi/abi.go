package abi

import (
	_ "embed"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

//go:embed gmp.json
var gmpJSONABI string

const MessageSent = "MessageSent(uint64,uint64,bytes32,bytes32,bytes)"

var (
	GmpABI abi.ABI

	MessageSentTopic common.Hash
)

func init() {
	var err error
	GmpABI, err = abi.JSON(strings.NewReader(gmpJSONABI))
	if err != nil {
		panic(err)
	}
	MessageSentTopic = crypto.Keccak256Hash([]byte(MessageSent))
}
