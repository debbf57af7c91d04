// Package voucher defines the payout voucher and its canonical hash.
//
// The signed message is keccak256 over the packed encoding
//
//	account (20 bytes) || amount (uint256, 32 bytes) || nonce (uint256, 32 bytes)
//
// in exactly that field order, wrapped in the fixed EIP-191 prefix
// "\x19Ethereum Signed Message:\n32". The order and widths are part of the
// public signing contract: the off-chain signer computed its signature over
// this construction, and any deviation silently recovers an unrelated
// address rather than failing loudly.
package voucher

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/halcyonpay/payout-vault/internal/sigcheck"
)

// PayoutVoucher is the off-chain authorization for a single payout.
// It is ephemeral: only the resulting nonce/claimed state persists.
type PayoutVoucher struct {
	Account   common.Address `json:"account"`
	Amount    *big.Int       `json:"amount"`
	Nonce     uint64         `json:"nonce"`
	Signature []byte         `json:"signature"`
}

// MessageHash builds the canonical unprefixed voucher hash.
func MessageHash(account common.Address, amount *big.Int, nonce uint64) [32]byte {
	// abi.encodePacked(address, uint256, uint256)
	encoded := make([]byte, 20+32+32)
	copy(encoded[0:20], account.Bytes())
	if amount != nil {
		amount.FillBytes(encoded[20:52])
	}
	new(big.Int).SetUint64(nonce).FillBytes(encoded[52:84])
	return crypto.Keccak256Hash(encoded)
}

// Digest is the prefixed hash the signer actually signs.
func Digest(account common.Address, amount *big.Int, nonce uint64) [32]byte {
	return sigcheck.PrefixedHash(MessageHash(account, amount, nonce))
}

// Sign signs the voucher in-place, converting V to the 27/28 convention.
func Sign(v *PayoutVoucher, privKey *ecdsa.PrivateKey) error {
	digest := Digest(v.Account, v.Amount, v.Nonce)
	sig, err := crypto.Sign(digest[:], privKey)
	if err != nil {
		return err
	}
	sig[64] += 27
	v.Signature = sig
	return nil
}

// RecoverSigner recovers the address that signed the voucher.
func RecoverSigner(v *PayoutVoucher) (common.Address, bool) {
	digest := Digest(v.Account, v.Amount, v.Nonce)
	return sigcheck.RecoverAddress(digest, v.Signature)
}

// Redis key layout shared between the engine store and operational tooling.
const (
	NonceHashKey   = "vault:nonce"   // HSET field = account (checksummed)
	ClaimedHashKey = "vault:claimed" // HSET field = account (checksummed)
	EventListKey   = "vault:events"  // RPUSH of JSON audit events
	RolesKey       = "vault:roles"   // JSON role snapshot
)
