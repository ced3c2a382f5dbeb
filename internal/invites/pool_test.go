package invites

import (
	"testing"

	"github.com/meritpog/pog-engine/internal/pghash"
	"github.com/meritpog/pog-engine/internal/refdomain"
	"github.com/meritpog/pog-engine/pkg/models"
)

func addr(b byte) refdomain.Address {
	var a refdomain.Address
	a[0] = b
	return a
}

type fakeStore struct {
	byIdx    map[uint64]models.ConfirmedAddress
	byAddr   map[refdomain.Address]models.ConfirmedAddress
	total    uint64
	rewarded map[refdomain.Address]int
}

func (f *fakeStore) TotalConfirmations() (uint64, error) { return f.total, nil }

func (f *fakeStore) ConfirmationByIndex(idx uint64) (models.ConfirmedAddress, bool, error) {
	c, ok := f.byIdx[idx]
	return c, ok, nil
}

func (f *fakeStore) ConfirmationByAddress(addressType refdomain.AddressType, address refdomain.Address) (models.ConfirmedAddress, bool, error) {
	c, ok := f.byAddr[address]
	return c, ok, nil
}

func (f *fakeStore) NewInviteRewardedHeight(address refdomain.Address) (int, error) {
	return f.rewarded[address], nil
}

func TestSelectFromAnyPoolOnly(t *testing.T) {
	target := models.ConfirmedAddress{AddressType: refdomain.KeyID, Address: addr(1), Invites: 0, ConfirmedAt: 10}
	s := &fakeStore{
		byIdx:    map[uint64]models.ConfirmedAddress{0: target},
		byAddr:   map[refdomain.Address]models.ConfirmedAddress{addr(1): target},
		total:    1,
		rewarded: map[refdomain.Address]int{},
	}

	pools := []Weighted{{Type: PoolAny, Probability: 1.0}}
	got, err := Select(s, nil, nil, pghash.Hash256{}, addr(99), 1, nil, 10, pools)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 || got[0].Address != addr(1) {
		t.Fatalf("Select() = %+v, want [%v]", got, target)
	}
}

func TestSelectSkipsGenesisAddress(t *testing.T) {
	genesis := addr(1)
	target := models.ConfirmedAddress{AddressType: refdomain.KeyID, Address: genesis}
	s := &fakeStore{
		byIdx:    map[uint64]models.ConfirmedAddress{0: target},
		byAddr:   map[refdomain.Address]models.ConfirmedAddress{genesis: target},
		total:    1,
		rewarded: map[refdomain.Address]int{},
	}

	pools := []Weighted{{Type: PoolAny, Probability: 1.0}}
	got, err := Select(s, nil, nil, pghash.Hash256{}, genesis, 1, nil, 10, pools)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected genesis address excluded, got %+v", got)
	}
}

func TestSelectNoConfirmationsReturnsNil(t *testing.T) {
	s := &fakeStore{byIdx: map[uint64]models.ConfirmedAddress{}, byAddr: map[refdomain.Address]models.ConfirmedAddress{}, total: 0}
	got, err := Select(s, nil, nil, pghash.Hash256{}, addr(99), 1, nil, 10, DefaultPools())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil result with zero confirmations, got %+v", got)
	}
}

func TestFromNewPoolRemovesSelected(t *testing.T) {
	pool := []models.ConfirmedAddress{
		{Address: addr(1)},
		{Address: addr(2)},
	}
	selected, ok := fromNewPool(&pool, pghash.Hash256{})
	if !ok {
		t.Fatal("expected a selection from a non-empty pool")
	}
	if len(pool) != 1 {
		t.Fatalf("expected pool shrunk by one, got %d entries", len(pool))
	}
	for _, p := range pool {
		if p.Address == selected.Address {
			t.Fatal("expected selected entry removed from the pool")
		}
	}
}

func TestFromNewPoolEmpty(t *testing.T) {
	var pool []models.ConfirmedAddress
	if _, ok := fromNewPool(&pool, pghash.Hash256{}); ok {
		t.Fatal("expected no selection from an empty pool")
	}
}

func TestConfirmedAddressesForNewPoolFiltersRewarded(t *testing.T) {
	a, b := addr(1), addr(2)
	s := &fakeStore{
		byIdx: map[uint64]models.ConfirmedAddress{
			0: {AddressType: refdomain.KeyID, Address: a, Invites: 1},
			1: {AddressType: refdomain.KeyID, Address: b, Invites: 1},
		},
		rewarded: map[refdomain.Address]int{b: 500},
	}

	pool, err := confirmedAddressesForNewPool(s, 2)
	if err != nil {
		t.Fatalf("confirmedAddressesForNewPool: %v", err)
	}
	if len(pool) != 1 || pool[0].Address != a {
		t.Fatalf("expected only the never-rewarded address in the pool, got %+v", pool)
	}
}
