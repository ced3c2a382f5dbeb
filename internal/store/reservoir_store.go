package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/meritpog/pog-engine/internal/lottery"
	"github.com/meritpog/pog-engine/internal/refdomain"
)

// reservoirEntry is the JSON projection of one heap slot, independent of
// package lottery's unexported entry type.
type reservoirEntry struct {
	Key         float64               `json:"key"`
	AddressType refdomain.AddressType `json:"address_type"`
	Address     refdomain.Address     `json:"address"`
}

// LoadReservoir reads the persisted reservoir snapshot, or returns a
// fresh empty reservoir of maxSize if none has been saved yet.
func (s *Store) LoadReservoir(ctx context.Context, maxSize uint64) (*lottery.Reservoir, error) {
	var entriesJSON []byte
	var storedMaxSize uint64
	err := s.pool.QueryRow(ctx, `SELECT max_size, entries FROM reservoir_state WHERE singleton`).Scan(&storedMaxSize, &entriesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return lottery.NewReservoir(maxSize), nil
	}
	if err != nil {
		return nil, err
	}

	var entries []reservoirEntry
	if err := json.Unmarshal(entriesJSON, &entries); err != nil {
		return nil, err
	}

	raw := make([]lottery.RawEntry, len(entries))
	for i, e := range entries {
		raw[i] = lottery.RawEntry{Key: e.Key, AddressType: e.AddressType, Address: e.Address}
	}
	return lottery.LoadRaw(storedMaxSize, raw), nil
}

// SaveReservoir persists the reservoir's current contents as a single
// row snapshot, replacing whatever was there.
func (s *Store) SaveReservoir(ctx context.Context, r *lottery.Reservoir) error {
	raw := r.RawEntries()
	entries := make([]reservoirEntry, len(raw))
	for i, e := range raw {
		entries[i] = reservoirEntry{Key: e.Key, AddressType: e.AddressType, Address: e.Address}
	}

	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO reservoir_state (singleton, max_size, entries) VALUES (TRUE, $1, $2)
		ON CONFLICT (singleton) DO UPDATE SET max_size = EXCLUDED.max_size, entries = EXCLUDED.entries`,
		r.MaxSize(), b)
	return err
}

// LogUndo persists one reservoir undo record to the audit log, keyed by
// its own AuditID rather than by block height, so a reorg that replays
// a height still yields a distinguishable trail.
func (s *Store) LogUndo(ctx context.Context, height int, u lottery.Undo) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lottery_undo_log (audit_id, block_height, replaced_key, replaced_address_type, replaced_address, replaced_with)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (audit_id) DO NOTHING`,
		u.AuditID, height, u.ReplacedKey, int16(u.ReplacedAddressType), u.ReplacedAddress[:], u.ReplacedWith[:])
	return err
}

// UndosAtHeight returns every undo record logged for height, in audit_id
// order, for a block-disconnect driver to replay via lottery.UndoAdd.
func (s *Store) UndosAtHeight(ctx context.Context, height int) ([]lottery.Undo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT audit_id, replaced_key, replaced_address_type, replaced_address, replaced_with
		FROM lottery_undo_log WHERE block_height = $1 ORDER BY audit_id`, height)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var undos []lottery.Undo
	for rows.Next() {
		var u lottery.Undo
		var addrType int16
		var replacedAddr, replacedWith []byte
		if err := rows.Scan(&u.AuditID, &u.ReplacedKey, &addrType, &replacedAddr, &replacedWith); err != nil {
			return nil, err
		}
		u.ReplacedAddressType = refdomain.AddressType(addrType)
		u.ReplacedAddress = refdomain.AddressFromBytes(replacedAddr)
		u.ReplacedWith = refdomain.AddressFromBytes(replacedWith)
		undos = append(undos, u)
	}
	return undos, rows.Err()
}
