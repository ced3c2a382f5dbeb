package orderer

import (
	"testing"

	"github.com/meritpog/pog-engine/internal/refdomain"
)

func addr(b byte) refdomain.Address {
	var a refdomain.Address
	a[0] = b
	return a
}

func ref(parent, self byte) refdomain.Referral {
	return refdomain.Referral{
		AddressType:   refdomain.KeyID,
		ParentAddress: addr(parent),
		Address:       addr(self),
	}
}

func alwaysKnown(refdomain.Address) (bool, error) { return true, nil }

func knownSet(known ...byte) ParentKnown {
	set := make(map[byte]bool, len(known))
	for _, b := range known {
		set[b] = true
	}
	return func(a refdomain.Address) (bool, error) {
		return set[a[0]], nil
	}
}

func TestOrderParentsBeforeChildren(t *testing.T) {
	// 1 is already known (genesis); 2 refers to 1, 3 and 4 both refer to 2,
	// shuffled out of order.
	refs := []refdomain.Referral{
		ref(2, 4),
		ref(1, 2),
		ref(2, 3),
	}

	if err := Order(refs, knownSet(1)); err != nil {
		t.Fatalf("Order: %v", err)
	}

	pos := make(map[byte]int, len(refs))
	for i, r := range refs {
		pos[r.Address[0]] = i
	}

	if pos[2] > pos[3] || pos[2] > pos[4] {
		t.Errorf("expected parent 2 to precede its children, order: %+v", refs)
	}
}

func TestOrderRejectsNoRoots(t *testing.T) {
	refs := []refdomain.Referral{ref(9, 1)}
	if err := Order(refs, knownSet()); err != ErrNoRoots {
		t.Fatalf("Order() = %v, want ErrNoRoots", err)
	}
}

func TestOrderRejectsOrphan(t *testing.T) {
	// 2's parent (1) is known, but 5's parent (4) is neither known nor
	// present in the batch: 5 is an orphan.
	refs := []refdomain.Referral{
		ref(1, 2),
		ref(4, 5),
	}
	if err := Order(refs, knownSet(1)); err != ErrDisconnected {
		t.Fatalf("Order() = %v, want ErrDisconnected", err)
	}
}

func TestOrderEmptyBatch(t *testing.T) {
	if err := Order(nil, alwaysKnown); err != nil {
		t.Fatalf("Order(nil) = %v, want nil", err)
	}
}
