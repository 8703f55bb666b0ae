package gateway

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const gatewayABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "provider", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "Contribute",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "provider", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "shares", "type": "uint256"}
    ],
    "name": "Withdraw",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "agent", "type": "address"},
      {"indexed": false, "internalType": "uint8", "name": "direction", "type": "uint8"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "OpenClaim",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "agent", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "claimId", "type": "uint64"},
      {"indexed": false, "internalType": "string", "name": "cid", "type": "string"}
    ],
    "name": "AttachProof",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "caller", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "claimId", "type": "uint64"}
    ],
    "name": "Settle",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "agent", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "claimId", "type": "uint64"}
    ],
    "name": "Cancel",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "shares", "type": "uint256"}
    ],
    "name": "TransferShares",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "provider", "type": "address"}
    ],
    "name": "ClaimRewards",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "caller", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "claimId", "type": "uint64"}
    ],
    "name": "Touch",
    "type": "event"
  }
]`

var (
	gatewayABI     abi.ABI
	gatewayABIOnce sync.Once
	gatewayABIErr  error
)

// GatewayABI returns the parsed submission gateway ABI.
func GatewayABI() (abi.ABI, error) {
	gatewayABIOnce.Do(func() {
		gatewayABI, gatewayABIErr = abi.JSON(strings.NewReader(gatewayABIJSON))
	})
	return gatewayABI, gatewayABIErr
}
