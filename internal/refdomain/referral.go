package refdomain

import (
	"bytes"
	"encoding/binary"

	"github.com/meritpog/pog-engine/internal/pghash"
)

const (
	// CurrentVersion is the default referral version (no alias required).
	CurrentVersion int32 = 0
	// InviteVersion is the first version that carries an alias.
	InviteVersion int32 = 1

	// MaxAliasLength bounds the serialized alias, independent of grammar.
	MaxAliasLength = 20
)

// MutableReferral is the builder form of Referral: every field is
// settable, and Address/Hash are derived on demand rather than cached.
type MutableReferral struct {
	Version       int32
	ParentAddress Address
	AddressType   AddressType
	Pubkey        []byte // compressed secp256k1 public key bytes
	Signature     []byte
	Alias         string

	address Address
	hasAddr bool
}

// NewMutableReferral builds a MutableReferral and derives its address
// using the "mix" rule: KeyID referrals use addressIn verbatim; every
// other address type mixes in HASH160(pubkey) via HASH160(addressIn ||
// HASH160(pubkey)).
func NewMutableReferral(
	addressType AddressType,
	addressIn Address,
	pubkey []byte,
	parentAddress Address,
	alias string,
	version int32,
) MutableReferral {
	r := MutableReferral{
		Version:       version,
		ParentAddress: parentAddress,
		AddressType:   addressType,
		Pubkey:        pubkey,
		Signature:     nil,
	}
	if version >= InviteVersion {
		r.Alias = alias
	}

	if addressType == KeyID {
		r.address = addressIn
	} else {
		pubkeyHash := pghash.Hash160(pubkey)
		r.address = mixAddresses(addressIn, pubkeyHash)
	}
	r.hasAddr = true
	return r
}

// mixAddresses implements the reference chain's MixAddresses: the mixed
// address is HASH160(addressIn || pubkeyHash).
func mixAddresses(addressIn Address, pubkeyHash [20]byte) Address {
	buf := make([]byte, 0, 40)
	buf = append(buf, addressIn[:]...)
	buf = append(buf, pubkeyHash[:]...)
	return AddressFromBytes(pghash.Hash160(buf)[:])
}

// GetAddress returns the derived beaconed address.
func (m MutableReferral) GetAddress() Address {
	return m.address
}

// Serialize writes the canonical wire form used for hashing: version,
// parent address, address type, address, pubkey, signature, and
// (version >= InviteVersion) a length-prefixed alias.
func (m MutableReferral) Serialize() []byte {
	var buf bytes.Buffer
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:], uint32(m.Version))
	buf.Write(tmp[:])
	buf.Write(m.ParentAddress[:])
	buf.WriteByte(byte(m.AddressType))
	buf.Write(m.address[:])
	writeVarBytes(&buf, m.Pubkey)
	writeVarBytes(&buf, m.Signature)
	if m.Version >= InviteVersion {
		writeVarBytes(&buf, []byte(m.Alias))
	}
	return buf.Bytes()
}

func writeVarBytes(buf *bytes.Buffer, b []byte) {
	var tmp [8]byte
	n := binary.PutUvarint(tmp[:], uint64(len(b)))
	buf.Write(tmp[:n])
	buf.Write(b)
}

// Hash computes HASH256 of the canonical serialization.
func (m MutableReferral) Hash() pghash.Hash256 {
	return pghash.DoubleSHA256(m.Serialize())
}

// SigningHash is the hash a beacon signature is computed over: the
// canonical serialization with the signature field cleared, so signing
// doesn't depend on its own output.
func (m MutableReferral) SigningHash() pghash.Hash256 {
	unsigned := m
	unsigned.Signature = nil
	return unsigned.Hash()
}

// Verify checks the referral's signature was produced by its own
// beaconing pubkey over SigningHash.
func (m MutableReferral) Verify() (bool, error) {
	return VerifySignature(m.Pubkey, m.SigningHash(), m.Signature)
}

// Referral is the immutable, validated form of MutableReferral stored in
// the graph. Construct it via MutableReferral.ToReferral once the
// mutable form is considered final.
type Referral struct {
	Version       int32
	ParentAddress Address
	AddressType   AddressType
	Address       Address
	Pubkey        []byte
	Signature     []byte
	Alias         string
	hash          pghash.Hash256
}

// ToReferral freezes a MutableReferral into a Referral, computing and
// caching its hash.
func (m MutableReferral) ToReferral() Referral {
	return Referral{
		Version:       m.Version,
		ParentAddress: m.ParentAddress,
		AddressType:   m.AddressType,
		Address:       m.GetAddress(),
		Pubkey:        append([]byte(nil), m.Pubkey...),
		Signature:     append([]byte(nil), m.Signature...),
		Alias:         m.Alias,
		hash:          m.Hash(),
	}
}

func (r Referral) GetHash() pghash.Hash256 { return r.hash }

func (r Referral) ToMutable() MutableReferral {
	return MutableReferral{
		Version:       r.Version,
		ParentAddress: r.ParentAddress,
		AddressType:   r.AddressType,
		Pubkey:        r.Pubkey,
		Signature:     r.Signature,
		Alias:         r.Alias,
		address:       r.Address,
		hasAddr:       true,
	}
}
