// Package anv implements the Aggregate Network Value propagator:
// applying a signed balance delta to an address and bubbling a halving
// fraction up to its ancestors, stored as an exact reduced rational to
// avoid truncation error across many small updates bubbling through
// deep trees.
//
// math/big's Rat is used instead of a third-party rational type: the
// pack contains no Go library offering arbitrary-precision rationals
// (see DESIGN.md), and big.Rat already normalizes to lowest terms on
// every operation, matching the "ANV is always an exact reduced
// fraction" requirement.
package anv

import (
	"errors"
	"math/big"

	"github.com/meritpog/pog-engine/internal/refdomain"
)

// ErrCycleDetected is returned when the propagation walk exceeds
// MaxLevels, indicating a cycle in the referral graph.
var ErrCycleDetected = errors.New("anv: referral graph cycle detected")

// ErrNegativeANV is returned when an update would drive an address's ANV
// below zero. The reference implementation treats this as an assertion
// failure (a caller bug, e.g. rolling back more than was ever applied),
// not a value to silently clamp, so this package surfaces it as an error
// instead of coercing to zero.
var ErrNegativeANV = errors.New("anv: update would drive ANV negative")

// MaxLevels guards the ancestor walk against cycles. The reference
// implementation uses 2^(bits of size_t); a bound of 2^32 serves the
// same purpose without ever being reachable by a legitimate tree.
const MaxLevels = 1 << 32

// Value is the exact-rational ANV of a single address, p/q in reduced
// form with p >= 0, q > 0.
type Value struct {
	Num *big.Int
	Den *big.Int
}

// ZeroValue is the initial ANV assigned to every newly inserted referral.
func ZeroValue() Value {
	return Value{Num: big.NewInt(0), Den: big.NewInt(1)}
}

func (v Value) rat() *big.Rat {
	return new(big.Rat).SetFrac(v.Num, v.Den)
}

func fromRat(r *big.Rat) Value {
	return Value{Num: new(big.Int).Set(r.Num()), Den: new(big.Int).Set(r.Denom())}
}

// Int truncates the rational ANV to an integer, mirroring the reference
// chain's AnvInToAnvPub.
func (v Value) Int() int64 {
	q := new(big.Int).Quo(v.Num, v.Den)
	return q.Int64()
}

// Store is the persistence dependency ANVPropagator needs: reading and
// writing an address's rational ANV, and walking to its parent. A
// concrete implementation lives in package store.
type Store interface {
	GetANV(addr refdomain.Address) (Value, bool, error)
	SetANV(addr refdomain.Address, v Value) error
	GetParent(addr refdomain.Address) (refdomain.AddressType, refdomain.Address, bool, error)
}

// Update applies delta (an exact integer amount, may be negative) to
// start's ANV and halves it at every ancestor hop. The walk stops at the
// root, when delta becomes exactly zero, or after MaxLevels hops (a
// cycle, which is fatal).
func Update(s Store, startType refdomain.AddressType, start refdomain.Address, delta int64) error {
	deltaRat := new(big.Rat).SetInt64(delta)
	address := start
	haveAddress := true
	level := 0

	for haveAddress && deltaRat.Sign() != 0 {
		if level >= MaxLevels {
			return ErrCycleDetected
		}

		current, ok, err := s.GetANV(address)
		if err != nil {
			return err
		}
		if !ok {
			current = ZeroValue()
		}

		updated := new(big.Rat).Add(current.rat(), deltaRat)
		if updated.Sign() < 0 {
			return ErrNegativeANV
		}

		if err := s.SetANV(address, fromRat(updated)); err != nil {
			return err
		}

		_, parent, hasParent, err := s.GetParent(address)
		if err != nil {
			return err
		}
		if !hasParent {
			haveAddress = false
		} else {
			address = parent
		}

		level++
		deltaRat.Quo(deltaRat, big.NewRat(2, 1))
	}

	return nil
}

// Rollback reverses a prior Update by applying the negated delta from
// the same starting address; ANV arithmetic is associative in the
// rationals so this is exact.
func Rollback(s Store, startType refdomain.AddressType, start refdomain.Address, delta int64) error {
	return Update(s, startType, start, -delta)
}

// Entrant is a single address's ANV as exposed to the ambassador
// lottery, mirroring refdb.h's AddressANV.
type Entrant struct {
	AddressType refdomain.AddressType
	Address     refdomain.Address
	ANV         int64
}

// Candidate describes one (type, address) pair the reservoir is
// tracking, independent of this package so anv need not import lottery.
type Candidate struct {
	AddressType refdomain.AddressType
	Address     refdomain.Address
}

// RewardableEntrants filters the reservoir's candidates down to valid
// ambassador destinations, reading each one's current ANV, and — at or
// after GenesisExclusionHeight — drops the first occurrence of the
// genesis address. Ported from refdb.cpp's GetAllRewardableANVs.
func RewardableEntrants(
	s Store,
	candidates []Candidate,
	height int,
	genesisAddress refdomain.Address,
	genesisExclusionHeight int,
) ([]Entrant, error) {
	entrants := make([]Entrant, 0, len(candidates))
	foundGenesis := false

	for _, c := range candidates {
		if !refdomain.IsValidAmbassadorDestination(c.AddressType) {
			continue
		}

		v, ok, err := s.GetANV(c.Address)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		if !foundGenesis && height >= genesisExclusionHeight && c.Address == genesisAddress {
			foundGenesis = true
			continue
		}

		entrants = append(entrants, Entrant{
			AddressType: c.AddressType,
			Address:     c.Address,
			ANV:         v.Int(),
		})
	}

	return entrants, nil
}
