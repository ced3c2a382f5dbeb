package cgs

import (
	"testing"

	"github.com/meritpog/pog-engine/internal/coinview"
	"github.com/meritpog/pog-engine/internal/refdomain"
)

func addr(b byte) refdomain.Address {
	var a refdomain.Address
	a[0] = b
	return a
}

func TestAgedBalanceOnlyCountsMatureCoins(t *testing.T) {
	e := CachedEntrant{
		Coins: []Coin{
			{Height: 0, Amount: 100},  // mature at tip 200, maturity 100
			{Height: 150, Amount: 50}, // immature
		},
	}
	if got := e.Balance(); got != 150 {
		t.Errorf("Balance() = %d, want 150", got)
	}
	if got := e.AgedBalance(200, 100); got != 100 {
		t.Errorf("AgedBalance() = %d, want 100", got)
	}
}

func TestComputeAllAggregatesSubtree(t *testing.T) {
	ctx := NewContext(1000, 100, 2880)

	root, child, grandchild := addr(1), addr(2), addr(3)
	ctx.AddEntrant(CachedEntrant{
		AddressType: refdomain.KeyID, Address: root,
		Coins: []Coin{{Height: 0, Amount: 10}}, Children: []refdomain.Address{child},
	})
	ctx.AddEntrant(CachedEntrant{
		AddressType: refdomain.KeyID, Address: child,
		Coins: []Coin{{Height: 0, Amount: 20}}, Children: []refdomain.Address{grandchild},
	})
	ctx.AddEntrant(CachedEntrant{
		AddressType: refdomain.KeyID, Address: grandchild,
		Coins: []Coin{{Height: 0, Amount: 30}},
	})

	entrants, err := ctx.ComputeAll()
	if err != nil {
		t.Fatalf("ComputeAll: %v", err)
	}
	if len(entrants) != 3 {
		t.Fatalf("expected 3 entrants, got %d", len(entrants))
	}

	byAddr := make(map[refdomain.Address]Entrant, len(entrants))
	for _, e := range entrants {
		byAddr[e.Address] = e
	}

	rootEntrant := byAddr[root]
	if rootEntrant.NetworkSize != 3 {
		t.Errorf("root NetworkSize = %d, want 3", rootEntrant.NetworkSize)
	}
	if rootEntrant.AgedBalance != 10 {
		t.Errorf("root AgedBalance = %d, want 10 (own balance only)", rootEntrant.AgedBalance)
	}
	if rootEntrant.CGS <= 0 {
		t.Errorf("root CGS = %d, want positive (subtree aggregates 60 aged balance)", rootEntrant.CGS)
	}
	if rootEntrant.SubCGS != 60 {
		t.Errorf("root SubCGS = %d, want 60 (raw subtree aged balance, before the size weight)", rootEntrant.SubCGS)
	}
	if rootEntrant.CGS == rootEntrant.SubCGS {
		t.Errorf("root CGS should differ from SubCGS once the network-size weight is applied")
	}

	grandchildEntrant := byAddr[grandchild]
	if grandchildEntrant.NetworkSize != 1 {
		t.Errorf("leaf NetworkSize = %d, want 1", grandchildEntrant.NetworkSize)
	}
	if grandchildEntrant.SubCGS != 30 {
		t.Errorf("leaf SubCGS = %d, want 30 (own aged balance only)", grandchildEntrant.SubCGS)
	}
}

func TestComputeAllGuardsAgainstCycles(t *testing.T) {
	ctx := NewContext(1000, 100, 2880)
	a, b := addr(1), addr(2)
	ctx.AddEntrant(CachedEntrant{AddressType: refdomain.KeyID, Address: a, Children: []refdomain.Address{b}})
	ctx.AddEntrant(CachedEntrant{AddressType: refdomain.KeyID, Address: b, Children: []refdomain.Address{a}})

	if _, err := ctx.ComputeAll(); err != nil {
		t.Fatalf("ComputeAll should not error on a cycle, just treat it as a leaf: %v", err)
	}
}

type fakeView struct {
	coins map[refdomain.Address][]coinview.Coin
}

func (f fakeView) Coins(a refdomain.Address) ([]coinview.Coin, error) {
	return f.coins[a], nil
}

func TestAddEntrantFromView(t *testing.T) {
	a := addr(1)
	view := fakeView{coins: map[refdomain.Address][]coinview.Coin{
		a: {{Height: 0, Amount: 42}},
	}}

	ctx := NewContext(100, 10, 100)
	if err := ctx.AddEntrantFromView(view, refdomain.KeyID, a, 0, nil); err != nil {
		t.Fatalf("AddEntrantFromView: %v", err)
	}

	e, ok := ctx.GetEntrant(a)
	if !ok {
		t.Fatal("expected entrant to be registered")
	}
	if e.Balance() != 42 {
		t.Errorf("Balance() = %d, want 42", e.Balance())
	}
}
