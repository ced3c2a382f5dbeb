package ambassador

import (
	"testing"

	"github.com/meritpog/pog-engine/internal/cgs"
	"github.com/meritpog/pog-engine/internal/pghash"
	"github.com/meritpog/pog-engine/internal/refdomain"
)

func addr(b byte) refdomain.Address {
	var a refdomain.Address
	a[0] = b
	return a
}

func entrant(b byte, score int64) cgs.Entrant {
	return cgs.Entrant{
		AddressType: refdomain.KeyID,
		Address:     addr(b),
		AgedBalance: score,
		CGS:         score,
	}
}

type alwaysConfirmed struct{}

func (alwaysConfirmed) IsConfirmed(refdomain.Address) (bool, error) { return true, nil }

type confirmSet map[refdomain.Address]bool

func (c confirmSet) IsConfirmed(a refdomain.Address) (bool, error) { return c[a], nil }

func TestDistributionSampleIsDeterministic(t *testing.T) {
	d := NewDistribution([]cgs.Entrant{entrant(1, 10), entrant(2, 20), entrant(3, 5)})
	var hash pghash.Hash256
	hash[0] = 7

	a, ok, err := d.Sample(hash)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if !ok {
		t.Fatal("expected a sample from a non-empty distribution")
	}

	b, _, err := d.Sample(hash)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if a.Address != b.Address {
		t.Error("expected the same hash to deterministically sample the same entrant")
	}
}

func TestDistributionEmptyErrors(t *testing.T) {
	d := NewDistribution(nil)
	if _, _, err := d.Sample(pghash.Hash256{}); err != ErrEmptyDistribution {
		t.Fatalf("Sample() = %v, want ErrEmptyDistribution", err)
	}
}

func TestDistributionAllZeroCGS(t *testing.T) {
	d := NewDistribution([]cgs.Entrant{entrant(1, 0), entrant(2, 0)})
	_, ok, err := d.Sample(pghash.Hash256{})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if ok {
		t.Error("expected a zero-weight distribution to report no sample")
	}
}

func TestSelectorRespectsStakeMinimum(t *testing.T) {
	entrants := []cgs.Entrant{entrant(1, 5), entrant(2, 500)}
	sel := NewSelector(entrants, 100)

	winners, err := sel.Select(alwaysConfirmed{}, pghash.Hash256{}, 2)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	for _, w := range winners {
		if w.Address == addr(1) {
			t.Error("expected low-stake entrant to be excluded")
		}
	}
}

func TestSelectorNoRepeatWinners(t *testing.T) {
	entrants := []cgs.Entrant{entrant(1, 100), entrant(2, 100), entrant(3, 100)}
	sel := NewSelector(entrants, 0)

	winners, err := sel.Select(alwaysConfirmed{}, pghash.Hash256{}, 3)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	seen := make(map[refdomain.Address]bool)
	for _, w := range winners {
		if seen[w.Address] {
			t.Fatalf("duplicate winner %v", w.Address)
		}
		seen[w.Address] = true
	}
}

func TestSelectorSkipsUnconfirmed(t *testing.T) {
	entrants := []cgs.Entrant{entrant(1, 100)}
	sel := NewSelector(entrants, 0)

	winners, err := sel.Select(confirmSet{}, pghash.Hash256{}, 1)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(winners) != 0 {
		t.Fatalf("expected no winners when nothing is confirmed, got %+v", winners)
	}
}
