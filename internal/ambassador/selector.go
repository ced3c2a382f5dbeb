// Package ambassador implements the CGS-weighted ambassador selector,
// ported from pog3/select.cpp's CgsDistribution and AddressSelector: an
// inverse-CDF sampler over the sorted CGS distribution, re-seeded by
// hashing the previous draw's address into the next draw's seed so a
// single block hash deterministically yields N distinct winners.
package ambassador

import (
	"errors"
	"sort"

	"github.com/meritpog/pog-engine/internal/cgs"
	"github.com/meritpog/pog-engine/internal/pghash"
	"github.com/meritpog/pog-engine/internal/refdomain"
)

// ErrEmptyDistribution is returned when Sample is called over zero
// entrants: sampling from nothing is a caller bug.
var ErrEmptyDistribution = errors.New("ambassador: cannot sample an empty distribution")

// Distribution is the sorted-CGS cumulative distribution: m_inverted in
// the reference implementation. Entrants are sorted by (cgs, address)
// and each one's cgs field is replaced by the running prefix sum, so a
// binary search over a uniformly sampled value in [0, maxCGS) locates
// the entrant whose CGS "bucket" contains it — entrants with larger CGS
// occupy a wider bucket and are sampled proportionally more often.
type Distribution struct {
	byAddress map[refdomain.Address]cgs.Entrant
	prefix    []cgs.Entrant // cgs field holds the cumulative sum, not the raw CGS
	maxCGS    int64
}

// NewDistribution builds the cumulative distribution over entrants.
// entrants with a negative CGS are a caller bug (CGS is never negative).
func NewDistribution(entrants []cgs.Entrant) *Distribution {
	d := &Distribution{
		byAddress: make(map[refdomain.Address]cgs.Entrant, len(entrants)),
		prefix:    make([]cgs.Entrant, len(entrants)),
	}

	sorted := append([]cgs.Entrant(nil), entrants...)
	for _, e := range sorted {
		d.byAddress[e.Address] = e
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CGS != sorted[j].CGS {
			return sorted[i].CGS < sorted[j].CGS
		}
		return refdomain.CompareAddress(sorted[i].Address, sorted[j].Address) < 0
	})

	var prev int64
	for i, e := range sorted {
		e.CGS += prev
		prev = e.CGS
		d.prefix[i] = e
	}

	if len(d.prefix) > 0 {
		d.maxCGS = d.prefix[len(d.prefix)-1].CGS
	}

	return d
}

// Size is the number of entrants in the distribution.
func (d *Distribution) Size() int { return len(d.prefix) }

// Sample draws one entrant keyed by hash. A distribution whose entrants
// all have CGS zero returns (_, false, nil): there's nothing to weight
// sampling by.
func (d *Distribution) Sample(hash pghash.Hash256) (cgs.Entrant, bool, error) {
	if len(d.prefix) == 0 {
		return cgs.Entrant{}, false, ErrEmptyDistribution
	}
	if d.maxCGS == 0 {
		return cgs.Entrant{}, false, nil
	}

	selected := int64(pghash.SipHashUint256(0, 0, hash) % uint64(d.maxCGS))

	idx := sort.Search(len(d.prefix), func(i int) bool {
		return d.prefix[i].CGS > selected
	})
	if idx == len(d.prefix) {
		idx = len(d.prefix) - 1
	}

	entrant, ok := d.byAddress[d.prefix[idx].Address]
	return entrant, ok, nil
}

// Confirmer is the lookup an Entrant's destination must pass before
// being selectable, mirroring ReferralsViewCache::IsConfirmed.
type Confirmer interface {
	IsConfirmed(addr refdomain.Address) (bool, error)
}

// Selector draws ambassador winners without replacement from a CGS
// distribution, enforcing a minimum stake and requiring the destination
// be confirmed and a valid ambassador address type.
type Selector struct {
	entrants     []cgs.Entrant
	distribution *Distribution
	stakeMinimum int64
	sampled      map[refdomain.Address]struct{}
}

// NewSelector builds a selector over entrants for the given height,
// with stakeMinimum drawn from chainparams.Params.AmbassadorMinimumStake.
func NewSelector(entrants []cgs.Entrant, stakeMinimum int64) *Selector {
	return &Selector{
		entrants:     entrants,
		distribution: NewDistribution(entrants),
		stakeMinimum: stakeMinimum,
		sampled:      make(map[refdomain.Address]struct{}),
	}
}

// Size is the number of distinct addresses in the underlying distribution.
func (s *Selector) Size() int { return s.distribution.Size() }

// Select draws up to n distinct winners deterministically from hash,
// re-hashing hash with the previous draw's address between attempts.
// It stops early if the distribution is exhausted.
func (s *Selector) Select(confirmer Confirmer, hash pghash.Hash256, n int) ([]cgs.Entrant, error) {
	samples := make([]cgs.Entrant, 0, n)

	size := s.distribution.Size()
	maxTries := max(n, size/2)
	if maxTries > size {
		maxTries = size
	}

	for n > 0 && maxTries > 0 {
		n--
		maxTries--

		sampled, ok, err := s.distribution.Sample(hash)
		if err != nil {
			return samples, err
		}

		if ok {
			hash = pghash.DoubleSHA256(append(append([]byte(nil), hash[:]...), sampled.Address[:]...))
		} else {
			hash = pghash.DoubleSHA256(append(hash[:], hash[:]...))
			n++
			continue
		}

		_, alreadySampled := s.sampled[sampled.Address]
		meetsStake := sampled.AgedBalance >= s.stakeMinimum

		confirmed, err := confirmer.IsConfirmed(sampled.Address)
		if err != nil {
			return samples, err
		}

		if !alreadySampled && meetsStake && confirmed && refdomain.IsValidAmbassadorDestination(sampled.AddressType) {
			s.sampled[sampled.Address] = struct{}{}
			samples = append(samples, sampled)
		} else {
			n++
		}
	}

	return samples, nil
}
