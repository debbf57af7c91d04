// Package sigcheck recovers signer addresses from 65-byte recoverable
// ECDSA signatures (EIP-191 style).
package sigcheck

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the expected R || S || V signature size.
const SignatureLength = 65

// HashMessage constructs the EIP-191 prefixed hash over an arbitrary message:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
func HashMessage(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// PrefixedHash applies the fixed-width EIP-191 prefix to a 32-byte digest:
// keccak256("\x19Ethereum Signed Message:\n32" + hash). This is the exact
// construction wallet signers use for eth_sign over a precomputed hash, so
// the prefix must match byte-for-byte.
func PrefixedHash(hash [32]byte) [32]byte {
	return crypto.Keccak256Hash([]byte("\x19Ethereum Signed Message:\n32"), hash[:])
}

// RecoverAddress recovers the signer of digest from a 65-byte signature.
//
// Every malformed input maps to (zero address, false) rather than an error
// or a panic: wrong length, V outside {27,28} after normalization, or an
// ecrecover failure. A successful recovery may still yield the zero address;
// callers must treat a zero identity as unauthorized either way.
func RecoverAddress(digest [32]byte, sig []byte) (common.Address, bool) {
	if len(sig) != SignatureLength {
		return common.Address{}, false
	}

	// Normalize V: accept {0,1} and {27,28}; ecrecover expects {0,1}.
	sigCopy := make([]byte, SignatureLength)
	copy(sigCopy, sig)
	if sigCopy[64] < 27 {
		sigCopy[64] += 27
	}
	if sigCopy[64] != 27 && sigCopy[64] != 28 {
		return common.Address{}, false
	}
	sigCopy[64] -= 27

	pub, err := crypto.SigToPub(digest[:], sigCopy)
	if err != nil {
		return common.Address{}, false
	}
	return crypto.PubkeyToAddress(*pub), true
}

// RecoverMessage recovers the signer of a raw message signed under the
// length-prefixed EIP-191 scheme (wallet personal_sign).
func RecoverMessage(msg []byte, sig []byte) (common.Address, bool) {
	var digest [32]byte
	copy(digest[:], HashMessage(msg))
	return RecoverAddress(digest, sig)
}
