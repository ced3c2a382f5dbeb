// Package coinview names the external-collaborator contract the engine
// expects its embedder to supply for coin/UTXO tracking. The engine
// does not implement block assembly, UTXO indexing, or script
// validation; it only consumes the (height, amount) sequence a given
// address currently holds, as required by the CGS balance/aged-balance
// computation.
package coinview

import "github.com/meritpog/pog-engine/internal/refdomain"

// Coin is one mature or immature output credited to an address at a
// given block height.
type Coin struct {
	Height int
	Amount int64
}

// View is implemented by the embedder's UTXO index. The engine treats
// it as a read-only external collaborator: it never mutates coin state
// itself, only aggregates it into cgs.CachedEntrant via AddEntrant.
type View interface {
	// Coins returns every coin currently credited to address, in any
	// order. The engine sums and ages these; it does not require the
	// view to pre-aggregate.
	Coins(address refdomain.Address) ([]Coin, error)
}
