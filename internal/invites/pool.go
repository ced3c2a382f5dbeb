// Package invites implements the three-pool invite lottery: CGS-weighted,
// new-beacon, and uniform-any, ported from pog3/select.cpp's
// SelectInviteAddress(FromCgsPool|FromNewPool|FromAnyPool) and
// SelectInviteAddresses.
package invites

import (
	"github.com/meritpog/pog-engine/internal/ambassador"
	"github.com/meritpog/pog-engine/internal/pghash"
	"github.com/meritpog/pog-engine/internal/refdomain"
	"github.com/meritpog/pog-engine/pkg/models"
)

// PoolType names one of the three invite pools.
type PoolType int

const (
	PoolCGS PoolType = iota
	PoolNew
	PoolAny
)

// Weighted is one pool's draw probability, in the fixed order the
// reference implementation samples them: CGS, then NEW, then ANY.
type Weighted struct {
	Type        PoolType
	Probability float64
}

// DefaultPools is the {CGS: 0.5, NEW: 0.4, ANY: 0.1} split.
func DefaultPools() []Weighted {
	return []Weighted{
		{PoolCGS, 0.5},
		{PoolNew, 0.4},
		{PoolAny, 0.1},
	}
}

// Store is the confirmation-ledger dependency the invite sampler reads.
type Store interface {
	TotalConfirmations() (uint64, error)
	ConfirmationByIndex(idx uint64) (models.ConfirmedAddress, bool, error)
	ConfirmationByAddress(addressType refdomain.AddressType, address refdomain.Address) (models.ConfirmedAddress, bool, error)
	NewInviteRewardedHeight(address refdomain.Address) (int, error)
}

// isValidInviteDestination mirrors IsValidAmbassadorDestinationForInvites:
// only KeyID addresses may receive an invite.
func isValidInviteDestination(t refdomain.AddressType) bool {
	return t == refdomain.KeyID
}

// confirmedAddressesForNewPool collects every once-beaconed, never
// new-pool-rewarded KeyID address, ported from GetConfirmedAddressesForNewPool.
func confirmedAddressesForNewPool(s Store, totalBeacons uint64) ([]models.ConfirmedAddress, error) {
	var pool []models.ConfirmedAddress
	for i := uint64(0); i < totalBeacons; i++ {
		c, ok, err := s.ConfirmationByIndex(i)
		if err != nil {
			return nil, err
		}
		if !ok || c.Invites > 1 || !isValidInviteDestination(c.AddressType) {
			continue
		}
		height, err := s.NewInviteRewardedHeight(c.Address)
		if err != nil {
			return nil, err
		}
		if height > 0 {
			continue
		}
		pool = append(pool, c)
	}
	return pool, nil
}

// fromNewPool draws one entry from newPool without replacement, swapping
// it to the end and truncating, exactly as the reference implementation
// does to avoid an O(n) shift.
func fromNewPool(newPool *[]models.ConfirmedAddress, hash pghash.Hash256) (models.ConfirmedAddress, bool) {
	pool := *newPool
	if len(pool) == 0 {
		return models.ConfirmedAddress{}, false
	}

	idx := pghash.SipHashUint256(0, 0, hash) % uint64(len(pool))
	selected := pool[idx]

	lastIdx := len(pool) - 1
	pool[idx], pool[lastIdx] = pool[lastIdx], pool[idx]
	*newPool = pool[:lastIdx]

	return selected, true
}

func fromCgsPool(s Store, selector *ambassador.Selector, confirmer ambassador.Confirmer, hash pghash.Hash256) (models.ConfirmedAddress, bool, error) {
	sampled, err := selector.Select(confirmer, hash, 1)
	if err != nil {
		return models.ConfirmedAddress{}, false, err
	}
	if len(sampled) == 0 {
		return models.ConfirmedAddress{}, false, nil
	}
	return s.ConfirmationByAddress(sampled[0].AddressType, sampled[0].Address)
}

func fromAnyPool(s Store, totalBeacons uint64, hash pghash.Hash256) (models.ConfirmedAddress, bool, error) {
	idx := pghash.SipHashUint256(0, 0, hash) % totalBeacons
	return s.ConfirmationByIndex(idx)
}

// rehash combines hash with itself, matching the reference
// implementation's hash-chaining between invite draws.
func rehash(hash pghash.Hash256) pghash.Hash256 {
	return pghash.DoubleSHA256(append(hash[:], hash[:]...))
}

// Select draws up to n invite recipients deterministically from hash.
// unconfirmedInvites and genesisAddress bound eligibility: an address
// already holding an unconfirmed invite, or the genesis address itself,
// is skipped. maxOutstandingInvites bounds how many invites a single
// address may still be sitting on before it is no longer eligible to
// receive another.
func Select(
	s Store,
	selector *ambassador.Selector,
	confirmer ambassador.Confirmer,
	hash pghash.Hash256,
	genesisAddress refdomain.Address,
	n int,
	unconfirmedInvites map[refdomain.Address]struct{},
	maxOutstandingInvites int,
	pools []Weighted,
) ([]models.ConfirmedAddress, error) {
	if n <= 0 || maxOutstandingInvites <= 0 {
		return nil, nil
	}

	totalBeacons, err := s.TotalConfirmations()
	if err != nil {
		return nil, err
	}
	if totalBeacons == 0 {
		return nil, nil
	}

	maxTries := n
	if tenth := int(totalBeacons / 10); tenth > maxTries {
		maxTries = tenth
	}
	if uint64(maxTries) > totalBeacons {
		maxTries = int(totalBeacons)
	}

	newPool, err := confirmedAddressesForNewPool(s, totalBeacons)
	if err != nil {
		return nil, err
	}

	var addresses []models.ConfirmedAddress

	for n > 0 && maxTries > 0 {
		n--
		maxTries--

		selectedIdx := pghash.SipHashUint256(0, 0, hash) % totalBeacons
		randVal := float64(selectedIdx) / float64(totalBeacons)

		hash = rehash(hash)

		pool := pools[pghash.SipHashUint256(0, 0, hash)%uint64(len(pools))]

		if randVal >= pool.Probability {
			n++
			maxTries++
			continue
		}

		var (
			candidate models.ConfirmedAddress
			found     bool
		)

		switch pool.Type {
		case PoolCGS:
			candidate, found, err = fromCgsPool(s, selector, confirmer, hash)
		case PoolNew:
			candidate, found = fromNewPool(&newPool, hash)
		case PoolAny:
			candidate, found, err = fromAnyPool(s, totalBeacons, hash)
		}
		if err != nil {
			return addresses, err
		}

		switch {
		case !found:
			n++
		case !isValidInviteDestination(candidate.AddressType):
			n++
		case candidate.Invites > maxOutstandingInvites:
			n++
		case candidate.Address == genesisAddress:
			n++
		default:
			if _, unconfirmed := unconfirmedInvites[candidate.Address]; unconfirmed {
				n++
			} else {
				addresses = append(addresses, candidate)
			}
		}
	}

	return addresses, nil
}
