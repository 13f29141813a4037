package contract

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const permitTokenABIJSON = `[
  {"inputs": [{"type": "address", "name": "owner"}], "name": "nonces", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "DOMAIN_SEPARATOR", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	permitTokenABI     abi.ABI
	permitTokenABIOnce sync.Once
	permitTokenABIErr  error
)

func permitTokenABIInstance() (abi.ABI, error) {
	permitTokenABIOnce.Do(func() {
		permitTokenABI, permitTokenABIErr = abi.JSON(strings.NewReader(permitTokenABIJSON))
	})
	return permitTokenABI, permitTokenABIErr
}
