// Package chainparams holds the chain parameters the engine consumes as
// an external collaborator. The reference deployment's concrete values
// are captured here as the "mainnet"-equivalent defaults; callers
// embedding the engine in a different chain provide their own.
package chainparams

import (
	"encoding/hex"
	"errors"

	"github.com/meritpog/pog-engine/internal/refdomain"
)

// ParseAddressHex decodes a 20-byte hex-encoded address, as used to
// configure GenesisAddress from the environment.
func ParseAddressHex(s string) (refdomain.Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return refdomain.Address{}, err
	}
	if len(b) != 20 {
		return refdomain.Address{}, errors.New("chainparams: address must be 20 bytes")
	}
	return refdomain.AddressFromBytes(b), nil
}

// InvitePool names one of the three invite-lottery pools and its draw
// probability.
type InvitePool struct {
	Name        string
	Probability float64
}

const (
	PoolCGS = "cgs"
	PoolNew = "new"
	PoolAny = "any"
)

// Params mirrors the external collaborator contract the engine expects
// its embedder to supply.
type Params struct {
	GenesisAddress refdomain.Address

	// SaferAliasHeight is the height at which the safe alias grammar and
	// transpose-tolerant equality take over from the legacy grammar.
	SaferAliasHeight int

	// NewDistributionAge is a beacon-age bound for a "new entrants"
	// distribution. No package reads it: the ambassador selector builds a
	// single distribution over all entrants.
	NewDistributionAge int

	MaxReservoirSize        uint64
	MaxOutstandingInvites   int
	CoinMaturity            int
	NewCoinMaturity         int

	// LotteryFixHeight is the height at or after which AddAddressToLottery
	// refreshes ANV and re-hashes the seed at every tree level (a
	// consensus-fixed bug, carried forward bug-for-bug).
	LotteryFixHeight int

	// GenesisExclusionHeight is the height at or after which the genesis
	// address is no longer an eligible ambassador-lottery entrant
	// (ported from refdb.cpp's GetAllRewardableANVs).
	GenesisExclusionHeight int

	InvitePools []InvitePool

	// AmbassadorStakeRampStart/End bound a linear ramp of the minimum ANV
	// stake required to be ambassador-eligible: 0 before RampStart,
	// AmbassadorStakeMax at and after RampEnd, and linearly interpolated
	// in between. See AmbassadorMinimumStake.
	AmbassadorStakeRampStart int
	AmbassadorStakeRampEnd   int
	AmbassadorStakeMax       int64
}

// DefaultInvitePools is the fixed {CGS: 0.5, NEW: 0.4, ANY: 0.1} split
// used to draw the three invite-lottery pools.
func DefaultInvitePools() []InvitePool {
	return []InvitePool{
		{Name: PoolCGS, Probability: 0.5},
		{Name: PoolNew, Probability: 0.4},
		{Name: PoolAny, Probability: 0.1},
	}
}

// MainNetParams mirrors the reference deployment's constants
// (lottery_fix_height=16000, genesis exclusion at height 13500).
func MainNetParams() Params {
	return Params{
		SaferAliasHeight:       0,
		NewDistributionAge:     10000,
		MaxReservoirSize:       10000,
		MaxOutstandingInvites:  10,
		CoinMaturity:           100,
		NewCoinMaturity:        2880,
		LotteryFixHeight:         16000,
		GenesisExclusionHeight:   13500,
		InvitePools:              DefaultInvitePools(),
		AmbassadorStakeRampStart: 13500,
		AmbassadorStakeRampEnd:   23500,
		AmbassadorStakeMax:       1_000_00000000, // 1000 MC at 8 decimals
	}
}

// AmbassadorMinimumStake returns the minimum ANV an address must hold to
// be eligible as an ambassador, supplementing the selector's eligibility
// check per pog3/cgs.h's GetAmbassadorMinumumStake declaration (the
// reference implementation ramps the requirement in rather than applying
// it as a step function; the exact curve wasn't recoverable from the
// retrieved source, so this package applies a linear ramp between two
// configured heights — see DESIGN.md's Open Question resolution).
func (p Params) AmbassadorMinimumStake(height int) int64 {
	switch {
	case height < p.AmbassadorStakeRampStart:
		return 0
	case height >= p.AmbassadorStakeRampEnd:
		return p.AmbassadorStakeMax
	default:
		span := p.AmbassadorStakeRampEnd - p.AmbassadorStakeRampStart
		elapsed := height - p.AmbassadorStakeRampStart
		return p.AmbassadorStakeMax * int64(elapsed) / int64(span)
	}
}
