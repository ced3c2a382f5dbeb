// Package cgs computes the Community Growth Score: a per-address score
// combining the aged balance an address (and its referral subtree) has
// accumulated with the breadth of the subtree it has grown, used by the
// ambassador selector to weight sampling.
//
// The aging and aggregation shape is ported from pog3/cgs.h's
// CachedEntrant/CGSContext/ComputeCGS; the precise combining formula
// wasn't recoverable from the retrieved source (pog3/cgs.h declares
// ComputeCGS but its .cpp wasn't part of the retrieval), so this package
// applies a documented, monotonic formula instead — see DESIGN.md.
package cgs

import (
	"math"
	"math/big"

	"github.com/meritpog/pog-engine/internal/coinview"
	"github.com/meritpog/pog-engine/internal/refdomain"
)

// Coin is one UTXO contributing to an address's balance, carried for
// coin-age computation against CoinMaturity/NewCoinMaturity.
type Coin struct {
	Height int
	Amount int64
}

// CachedEntrant is one node of the referral tree under evaluation, with
// its own coins and its direct children (not the whole subtree).
type CachedEntrant struct {
	AddressType refdomain.AddressType
	Address     refdomain.Address
	Coins       []Coin
	Height      int // beacon (referral) height
	Children    []refdomain.Address
}

// Balance sums every coin's amount, regardless of age.
func (e CachedEntrant) Balance() int64 {
	var total int64
	for _, c := range e.Coins {
		total += c.Amount
	}
	return total
}

// AgedBalance sums coins old enough (relative to tipHeight) to count
// toward the aged balance, per coinMaturity.
func (e CachedEntrant) AgedBalance(tipHeight, coinMaturity int) int64 {
	var total int64
	for _, c := range e.Coins {
		if tipHeight-c.Height >= coinMaturity {
			total += c.Amount
		}
	}
	return total
}

// IsNew reports whether the entrant beaconed recently enough (relative
// to tipHeight) to count as a "new" distribution candidate.
func (e CachedEntrant) IsNew(tipHeight, newCoinMaturity int) bool {
	return tipHeight-e.Height < newCoinMaturity
}

// Entrant is the computed result for one address: its CGS, balances,
// and tree-shape statistics, mirroring pog3::Entrant.
type Entrant struct {
	AddressType refdomain.AddressType
	Address     refdomain.Address
	Balance     int64
	AgedBalance int64
	CGS         int64
	SubCGS      int64 // subtree aged-balance contribution, before the network-size weight
	BeaconHeight int
	Children    int
	NetworkSize int
}

// subtreeResult is the per-address aggregate computed bottom-up.
type subtreeResult struct {
	agedBalance *big.Float
	size        int
}

// Context holds the chain parameters and the working tree the engine
// aggregates over. Entrants must be indexed by Address before calling
// ComputeAll (AddEntrant does this).
type Context struct {
	TipHeight       int
	CoinMaturity    int
	NewCoinMaturity int

	entrants map[refdomain.Address]CachedEntrant
	order    []refdomain.Address // insertion order, for deterministic iteration
}

// NewContext creates an empty computation context.
func NewContext(tipHeight, coinMaturity, newCoinMaturity int) *Context {
	return &Context{
		TipHeight:       tipHeight,
		CoinMaturity:    coinMaturity,
		NewCoinMaturity: newCoinMaturity,
		entrants:        make(map[refdomain.Address]CachedEntrant),
	}
}

// AddEntrant registers one node of the tree under evaluation.
func (c *Context) AddEntrant(e CachedEntrant) {
	if _, exists := c.entrants[e.Address]; !exists {
		c.order = append(c.order, e.Address)
	}
	c.entrants[e.Address] = e
}

// AddEntrantFromView registers one node, pulling its coins from the
// embedder's coin view collaborator rather than requiring the caller to
// pre-aggregate balances.
func (c *Context) AddEntrantFromView(view coinview.View, addressType refdomain.AddressType, address refdomain.Address, beaconHeight int, children []refdomain.Address) error {
	coins, err := view.Coins(address)
	if err != nil {
		return err
	}
	entrantCoins := make([]Coin, len(coins))
	for i, coin := range coins {
		entrantCoins[i] = Coin{Height: coin.Height, Amount: coin.Amount}
	}
	c.AddEntrant(CachedEntrant{
		AddressType: addressType,
		Address:     address,
		Coins:       entrantCoins,
		Height:      beaconHeight,
		Children:    children,
	})
	return nil
}

// GetEntrant looks up a previously added node.
func (c *Context) GetEntrant(address refdomain.Address) (CachedEntrant, bool) {
	e, ok := c.entrants[address]
	return e, ok
}

// ComputeAll evaluates the CGS of every entrant added to the context,
// aggregating each address's aged balance over its full referral
// subtree and weighting it by the subtree's size: addresses that have
// grown a larger, well-funded network score higher than an isolated
// address holding the same balance alone.
//
// CGS(v) = floor(subtreeAgedBalance(v) * log2(1 + subtreeSize(v)))
func (c *Context) ComputeAll() ([]Entrant, error) {
	memo := make(map[refdomain.Address]subtreeResult, len(c.entrants))

	var resolve func(addr refdomain.Address) subtreeResult
	visiting := make(map[refdomain.Address]bool)

	resolve = func(addr refdomain.Address) subtreeResult {
		if r, ok := memo[addr]; ok {
			return r
		}
		e, ok := c.entrants[addr]
		if !ok {
			return subtreeResult{agedBalance: big.NewFloat(0), size: 0}
		}
		if visiting[addr] {
			// Cycle guard: treat as a leaf rather than recursing forever.
			return subtreeResult{agedBalance: big.NewFloat(float64(e.AgedBalance(c.TipHeight, c.CoinMaturity))), size: 1}
		}
		visiting[addr] = true

		total := big.NewFloat(float64(e.AgedBalance(c.TipHeight, c.CoinMaturity)))
		size := 1
		for _, child := range e.Children {
			childResult := resolve(child)
			total.Add(total, childResult.agedBalance)
			size += childResult.size
		}

		result := subtreeResult{agedBalance: total, size: size}
		memo[addr] = result
		delete(visiting, addr)
		return result
	}

	entrants := make([]Entrant, 0, len(c.order))
	for _, addr := range c.order {
		e := c.entrants[addr]
		r := resolve(addr)

		subCGS, _ := r.agedBalance.Int64()

		weight := math.Log2(1 + float64(r.size))
		scaled := new(big.Float).Mul(r.agedBalance, big.NewFloat(weight))
		cgs, _ := scaled.Int64()

		entrants = append(entrants, Entrant{
			AddressType:  e.AddressType,
			Address:      e.Address,
			Balance:      e.Balance(),
			AgedBalance:  e.AgedBalance(c.TipHeight, c.CoinMaturity),
			CGS:          cgs,
			SubCGS:       subCGS,
			BeaconHeight: e.Height,
			Children:     len(e.Children),
			NetworkSize:  r.size,
		})
	}

	return entrants, nil
}
