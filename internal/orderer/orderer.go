// Package orderer topologically sorts a batch of referrals into
// parent-before-child order via a breadth-first walk, ported from
// refdb.cpp's OrderReferrals.
package orderer

import (
	"errors"

	"github.com/meritpog/pog-engine/internal/refdomain"
)

// ErrNoRoots is returned when none of the referrals in the batch have an
// already-known parent: the batch cannot possibly be valid.
var ErrNoRoots = errors.New("orderer: batch contains no referral with a known parent")

// ErrDisconnected is returned when the breadth-first walk leaves
// referrals unreached: the batch contains an orphan, or a second
// referral for an address already seen, or some other inconsistency
// that makes it impossible to linearize.
var ErrDisconnected = errors.New("orderer: batch contains unreachable or cyclic referrals")

// ParentKnown answers whether address already has a referral recorded,
// i.e. whether a referral naming it as parent can be treated as a root
// of this batch's forest.
type ParentKnown func(address refdomain.Address) (bool, error)

// Order reorders refs in place into parent-before-child order across
// however many trees the batch touches. Referrals whose parent is
// already known to the store are the roots; every other referral is
// filed under its parent within the batch and visited breadth-first.
func Order(refs []refdomain.Referral, parentKnown ParentKnown) error {
	if len(refs) == 0 {
		return nil
	}

	rootEnd := 0
	for i, ref := range refs {
		known, err := parentKnown(ref.ParentAddress)
		if err != nil {
			return err
		}
		if known {
			refs[i], refs[rootEnd] = refs[rootEnd], refs[i]
			rootEnd++
		}
	}

	if rootEnd == 0 {
		return ErrNoRoots
	}

	children := make(map[refdomain.Address][]refdomain.Referral)
	for _, ref := range refs[rootEnd:] {
		children[ref.ParentAddress] = append(children[ref.ParentAddress], ref)
	}

	queue := make([]refdomain.Referral, rootEnd)
	copy(queue, refs[:rootEnd])

	replace := 0
	for len(queue) > 0 && replace < len(refs) {
		ref := queue[0]
		queue = queue[1:]

		refs[replace] = ref
		replace++

		queue = append(queue, children[ref.Address]...)
	}

	if replace != len(refs) || len(queue) != 0 {
		return ErrDisconnected
	}

	return nil
}
