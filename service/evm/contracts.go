package evm

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// Contract ABI fragments, trimmed to the methods and events this service
// invokes.

const erc20ABI = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const feeProxyABI = `[
  {"inputs":[
    {"name":"_tokenAddress","type":"address"},
    {"name":"_to","type":"address"},
    {"name":"_amount","type":"uint256"},
    {"name":"_paymentReference","type":"bytes"},
    {"name":"_feeAmount","type":"uint256"},
    {"name":"_feeAddress","type":"address"}
  ],"name":"transferFromWithReferenceAndFee","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const batchProxyABI = `[
  {"inputs":[
    {"name":"_tokenAddress","type":"address"},
    {"name":"_recipients","type":"address[]"},
    {"name":"_amounts","type":"uint256[]"},
    {"name":"_paymentReferences","type":"bytes[]"},
    {"name":"_feeAmounts","type":"uint256[]"},
    {"name":"_feeAddress","type":"address"}
  ],"name":"batchERC20PaymentsWithReference","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const escrowABI = `[
  {"inputs":[
    {"name":"_tokenAddress","type":"address"},
    {"name":"_to","type":"address"},
    {"name":"_amount","type":"uint256"},
    {"name":"_paymentRef","type":"bytes"},
    {"name":"_feeAmount","type":"uint256"},
    {"name":"_feeAddress","type":"address"}
  ],"name":"payEscrow","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"_paymentRef","type":"bytes"}],"name":"payRequestFromEscrow","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"_paymentRef","type":"bytes"}],"name":"freezeRequest","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"_paymentRef","type":"bytes"}],"name":"initiateEmergencyClaim","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const forwarderFactoryABI = `[
  {"inputs":[
    {"name":"_payee","type":"address"},
    {"name":"_tokenAddress","type":"address"},
    {"name":"_paymentReference","type":"bytes"}
  ],"name":"createERC20SingleRequestProxy","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"anonymous":false,"inputs":[
    {"indexed":false,"name":"proxyAddress","type":"address"},
    {"indexed":true,"name":"payee","type":"address"},
    {"indexed":true,"name":"tokenAddress","type":"address"}
  ],"name":"ERC20SingleRequestProxyCreated","type":"event"}
]`

// PaymentReference derives the 8-byte on-chain payment reference for a
// request. The truncated keccak hash matches what the payment detection
// layer indexes.
func PaymentReference(requestID string) []byte {
	sum := crypto.Keccak256([]byte(requestID))
	return sum[:8]
}
