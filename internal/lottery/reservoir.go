// Package lottery implements the weighted-reservoir invite lottery: a
// fixed-capacity min-heap selecting candidates via the
// Efraimidis-Spirakis key transform, maintained incrementally across
// block connects/disconnects with undo records.
//
// The heap itself uses container/heap (stdlib) rather than a
// third-party priority-queue package: container/heap is the idiomatic
// Go way to express exactly this shape (see DESIGN.md).
package lottery

import (
	"bytes"
	"container/heap"
	"errors"
	"math"

	"github.com/google/uuid"

	"github.com/meritpog/pog-engine/internal/anv"
	"github.com/meritpog/pog-engine/internal/pghash"
	"github.com/meritpog/pog-engine/internal/refdomain"
)

// ErrInconsistentIndex is a fatal invariant violation: the
// address->position index disagreed with the heap array.
var ErrInconsistentIndex = errors.New("lottery: reservoir index inconsistent with heap array")

// MaxLevels bounds the ancestor walk in Add, guarding against a cycle.
const MaxLevels = 1 << 32

// entry is one (key, address_type, address) tuple in the reservoir.
type entry struct {
	key         float64
	addressType refdomain.AddressType
	address     refdomain.Address
}

func (e entry) less(o entry) bool {
	if e.key != o.key {
		return e.key < o.key
	}
	// Tie-break on the serialized tuple for a total, deterministic order.
	var a, b bytes.Buffer
	a.WriteByte(byte(e.addressType))
	a.Write(e.address[:])
	b.WriteByte(byte(o.addressType))
	b.Write(o.address[:])
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

// Reservoir is a fixed-capacity weighted min-heap: the smallest key is
// always at position 0 and is the first candidate evicted when a larger
// key arrives.
type Reservoir struct {
	items   []entry
	pos     map[refdomain.Address]int
	maxSize uint64
}

// NewReservoir creates an empty reservoir with the given capacity.
func NewReservoir(maxSize uint64) *Reservoir {
	return &Reservoir{
		items:   make([]entry, 0, maxSize),
		pos:     make(map[refdomain.Address]int),
		maxSize: maxSize,
	}
}

// heap.Interface implementation. Every Swap keeps pos in lock-step with
// items; this invariant must hold after every mutation.

func (r *Reservoir) Len() int { return len(r.items) }

func (r *Reservoir) Less(i, j int) bool { return r.items[i].less(r.items[j]) }

func (r *Reservoir) Swap(i, j int) {
	r.items[i], r.items[j] = r.items[j], r.items[i]
	r.pos[r.items[i].address] = i
	r.pos[r.items[j].address] = j
}

func (r *Reservoir) Push(x any) {
	e := x.(entry)
	r.pos[e.address] = len(r.items)
	r.items = append(r.items, e)
}

func (r *Reservoir) Pop() any {
	old := r.items
	n := len(old)
	e := old[n-1]
	r.items = old[:n-1]
	delete(r.pos, e.address)
	return e
}

// Size returns the current occupancy.
func (r *Reservoir) Size() uint64 { return uint64(len(r.items)) }

// Contains reports whether address currently holds a reservoir slot.
func (r *Reservoir) Contains(address refdomain.Address) bool {
	_, ok := r.pos[address]
	return ok
}

// minEntry returns the smallest-key entry, if any.
func (r *Reservoir) minEntry() (entry, bool) {
	if len(r.items) == 0 {
		return entry{}, false
	}
	return r.items[0], true
}

// Entries returns the reservoir's (type, address) pairs in heap array
// order (not sorted by key) for downstream ANV lookups.
func (r *Reservoir) Entries() []anv.Candidate {
	out := make([]anv.Candidate, len(r.items))
	for i, e := range r.items {
		out[i] = anv.Candidate{AddressType: e.addressType, Address: e.address}
	}
	return out
}

// MaxSize returns the reservoir's configured capacity.
func (r *Reservoir) MaxSize() uint64 { return r.maxSize }

// RawEntry is the persisted projection of one heap slot, exposed so
// package store can serialize/restore a reservoir across restarts
// without depending on this package's unexported entry type.
type RawEntry struct {
	Key         float64
	AddressType refdomain.AddressType
	Address     refdomain.Address
}

// RawEntries returns every slot's (key, type, address), in heap array
// order, for persistence.
func (r *Reservoir) RawEntries() []RawEntry {
	out := make([]RawEntry, len(r.items))
	for i, e := range r.items {
		out[i] = RawEntry{Key: e.key, AddressType: e.addressType, Address: e.address}
	}
	return out
}

// LoadRaw rebuilds a Reservoir from a previously persisted snapshot.
func LoadRaw(maxSize uint64, raw []RawEntry) *Reservoir {
	r := NewReservoir(maxSize)
	for _, e := range raw {
		r.items = append(r.items, entry{key: e.Key, addressType: e.AddressType, address: e.Address})
	}
	for i, e := range r.items {
		r.pos[e.address] = i
	}
	heap.Init(r)
	return r
}

// Undo records what a reservoir insertion replaced, so it can be
// reversed symmetrically on block disconnect. AuditID identifies this
// record in the durable undo log independent of block height, so a
// reorg replaying the same height twice still produces distinguishable
// log entries.
type Undo struct {
	AuditID             uuid.UUID
	ReplacedKey         float64
	ReplacedAddressType refdomain.AddressType
	ReplacedAddress     refdomain.Address
	ReplacedWith        refdomain.Address
}

// WeightedKey computes the Efraimidis-Spirakis sampling key for a 256-bit
// seed and a non-negative integer weight: key = log(U)/w where
// U = R/2^256 in (0,1]. We approximate U with the seed's leading 64 bits
// (uniform to 2^-64 resolution), which is sufficient entropy for any
// realistic weight and avoids requiring a full 256-bit fixed-point log.
//
// This is flagged rather than asserted bit-exact: the precise log
// transform is consensus-critical and would need to be fixed against the
// reference client before claiming byte-for-byte compatibility; this
// package implements the documented shape of the transform, not a
// verified bit-exact port.
func WeightedKey(seed pghash.Hash256, weight int64) float64 {
	if weight < 1 {
		weight = 1
	}

	var top uint64
	for i := 0; i < 8; i++ {
		top = top<<8 | uint64(seed[i])
	}
	// Map to (0,1]: avoid U=0 so log is finite.
	u := (float64(top) + 1) / (float64(1<<64) + 1)
	return math.Log(u) / float64(weight)
}

// Add attempts to place address and then each of its ancestors in turn
// into the reservoir, walking to the parent after every attempt whether
// or not it placed an entry. It returns the undo records produced, in
// application order.
func Add(
	r *Reservoir,
	s anv.Store,
	height int,
	seed pghash.Hash256,
	addressType refdomain.AddressType,
	address refdomain.Address,
	fixHeight int,
) ([]Undo, error) {
	if !refdomain.IsValidAmbassadorDestination(addressType) {
		return nil, nil
	}

	var undos []Undo
	currentType := addressType
	currentAddr := address
	haveAddress := true
	level := 0
	weight := int64(0)

	for haveAddress && level < MaxLevels {
		if level == 0 || height >= fixHeight {
			// Below fixHeight the starting address's ANV is reused at
			// every level — the consensus-fixed bug carried forward.
			v, ok, err := s.GetANV(currentAddr)
			if err != nil {
				return undos, err
			}
			weight = 0
			if ok {
				weight = v.Int()
			}
		}

		if height >= fixHeight {
			// Re-hash the seed with the address at this level.
			hasher := append(append([]byte(nil), seed[:]...), currentAddr[:]...)
			seed = pghash.DoubleSHA256(hasher)
		}

		key := WeightedKey(seed, weight)

		if r.Size() < r.maxSize {
			if !r.Contains(currentAddr) {
				heap.Push(r, entry{key: key, addressType: currentType, address: currentAddr})
				undos = append(undos, Undo{
					AuditID:             uuid.New(),
					ReplacedKey:         key,
					ReplacedAddressType: currentType,
					ReplacedAddress:     currentAddr,
					ReplacedWith:        currentAddr,
				})
			}
		} else {
			minE, ok := r.minEntry()
			if !ok {
				return undos, ErrInconsistentIndex
			}
			if minE.key < key && !r.Contains(currentAddr) {
				popped := heap.Pop(r).(entry)
				heap.Push(r, entry{key: key, addressType: currentType, address: currentAddr})
				undos = append(undos, Undo{
					AuditID:             uuid.New(),
					ReplacedKey:         popped.key,
					ReplacedAddressType: popped.addressType,
					ReplacedAddress:     popped.address,
					ReplacedWith:        currentAddr,
				})
			}
		}

		parentType, parent, hasParent, err := s.GetParent(currentAddr)
		if err != nil {
			return undos, err
		}
		if !hasParent {
			haveAddress = false
		} else {
			currentType, currentAddr = parentType, parent
		}
		level++
	}

	return undos, nil
}

// UndoAdd reverses one Undo record: it removes ReplacedWith from the
// reservoir, and if the undo wasn't a pure addition, re-inserts the
// entry it had replaced.
func UndoAdd(r *Reservoir, u Undo) error {
	if err := remove(r, u.ReplacedWith); err != nil {
		return err
	}

	if u.ReplacedWith == u.ReplacedAddress {
		return nil
	}

	heap.Push(r, entry{key: u.ReplacedKey, addressType: u.ReplacedAddressType, address: u.ReplacedAddress})
	return nil
}

func remove(r *Reservoir, address refdomain.Address) error {
	i, ok := r.pos[address]
	if !ok {
		return nil
	}
	if i < 0 || i >= len(r.items) || r.items[i].address != address {
		return ErrInconsistentIndex
	}
	heap.Remove(r, i)
	return nil
}
