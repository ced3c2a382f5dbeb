// Package refdomain defines the referral-graph data model: addresses and
// referrals. It mirrors primitives/referral.h from the reference chain,
// adapted to Go value types instead of boost::variant / boost::optional.
package refdomain

import (
	"bytes"
	"encoding/hex"
	"errors"
)

// AddressType identifies what kind of destination an Address is. Only
// KeyID and ScriptID are valid ambassador destinations; only KeyID may
// receive invite rewards.
type AddressType byte

const (
	KeyID         AddressType = 1
	ScriptID      AddressType = 2
	ParamScriptID AddressType = 3
)

// IsValidAmbassadorDestination reports whether type can receive ambassador
// rewards (KeyID or ScriptID). ParamScriptID's consensus role at reward
// time is unclear, so it is excluded.
func IsValidAmbassadorDestination(t AddressType) bool {
	return t == KeyID || t == ScriptID
}

// IsValidInviteDestination reports whether type may receive invite
// rewards. Only KeyID addresses qualify.
func IsValidInviteDestination(t AddressType) bool {
	return t == KeyID
}

// Address is a 160-bit identifier, byte-lexicographically ordered.
type Address [20]byte

// Less implements byte-lexicographic ordering.
func (a Address) Less(b Address) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func (a Address) Equal(b Address) bool {
	return a == b
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressFromBytes builds an Address by copying up to 20 bytes of b. It
// does not check the length: a shorter slice leaves the trailing bytes
// zero, and bytes past the 20th are dropped.
func AddressFromBytes(b []byte) Address {
	var a Address
	copy(a[:], b)
	return a
}

// CompareAddress is a byte-lexicographic comparator for Address values,
// returning -1, 0 or +1 as bytes.Compare does.
func CompareAddress(a, b Address) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalJSON renders an Address as a hex string rather than a byte array.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON parses an Address from a hex string.
func (a *Address) UnmarshalJSON(b []byte) error {
	if len(b) < 2 {
		return errors.New("refdomain: empty address")
	}
	decoded, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	if len(decoded) != 20 {
		return errors.New("refdomain: address must be 20 bytes")
	}
	copy(a[:], decoded)
	return nil
}
