// Package pghash wraps the three hash primitives the engine treats as
// external collaborators: HASH256 (double SHA-256), HASH160
// (RIPEMD160∘SHA256), and a keyed 64-bit SipHash-2-4 equivalent. None of
// these are reimplemented — they're thin adapters over existing
// well-tested libraries.
package pghash

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dchest/siphash"
)

// Hash256 is a 256-bit double-SHA256 digest.
type Hash256 = chainhash.Hash

// DoubleSHA256 computes HASH256(b), the reference chain's block/referral hash.
func DoubleSHA256(b []byte) Hash256 {
	return chainhash.DoubleHashH(b)
}

// Hash160 computes RIPEMD160(SHA256(b)), used for address mixing.
func Hash160(b []byte) [20]byte {
	var out [20]byte
	copy(out[:], btcutil.Hash160(b))
	return out
}

// SipHash24 computes the keyed 64-bit hash used by the ambassador/invite
// samplers, equivalent to SipHash-2-4 over a 256-bit message.
func SipHash24(k0, k1 uint64, msg []byte) uint64 {
	return siphash.Hash(k0, k1, msg)
}

// SipHashUint256 is the consensus-named helper mirroring the reference
// implementation's SipHashUint256(k0, k1, hash) call sites.
func SipHashUint256(k0, k1 uint64, h Hash256) uint64 {
	return SipHash24(k0, k1, h[:])
}
