// Package store is the Postgres-backed persistence layer for the
// referral graph, ANV ledger, confirmation ledger, and invite reservoir
// snapshot. It adapts the connection-pool and transactional-write
// pattern of a pgxpool connection pool with schema.sql
// loaded at startup, multi-statement writes wrapped in a transaction) to
// the reference chain's prefixed-key scheme, implemented here as
// separate tables rather than a single keyspace.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meritpog/pog-engine/internal/alias"
	"github.com/meritpog/pog-engine/internal/anv"
	"github.com/meritpog/pog-engine/internal/pghash"
	"github.com/meritpog/pog-engine/internal/refdomain"
	"github.com/meritpog/pog-engine/pkg/models"
)

// ErrNotFound is returned by single-row lookups that found nothing.
var ErrNotFound = errors.New("store: not found")

// Store wraps a pgx connection pool and implements every persistence
// dependency the engine's packages need: anv.Store, ambassador.Confirmer,
// invites.Store, and the referral graph itself.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the connection pool and verifies it with a ping.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("store: unable to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql, creating every table the
// engine needs if it doesn't already exist.
func (s *Store) InitSchema(ctx context.Context, schemaPath string) error {
	b, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("store: reading schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(b)); err != nil {
		return fmt.Errorf("store: applying schema: %w", err)
	}
	return nil
}

// --- Referral graph -------------------------------------------------

// InsertReferral writes a confirmed referral and its derived indices
// (by hash, by parent->children edge) in one transaction, and seeds its
// ANV at 0/1. If allowNoParent is false and the parent isn't already
// stored, the insert is refused — ported from refdb.cpp's InsertReferral.
// saferAliasHeight selects which alias grammar height gates: see
// chainparams.Params.SaferAliasHeight.
func (s *Store) InsertReferral(ctx context.Context, height, saferAliasHeight int, ref refdomain.Referral, allowNoParent bool) error {
	if len(ref.Alias) > refdomain.MaxAliasLength {
		return fmt.Errorf("store: alias %q exceeds max length", ref.Alias)
	}
	if !alias.Check(ref.Alias, height, saferAliasHeight) {
		return fmt.Errorf("store: alias %q fails grammar or blacklist check", ref.Alias)
	}

	if ok, err := ref.ToMutable().Verify(); err != nil || !ok {
		if err != nil {
			return fmt.Errorf("store: verifying referral signature: %w", err)
		}
		return fmt.Errorf("store: referral signature invalid for %s", ref.Address)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM referrals WHERE address = $1)`, ref.Address[:]).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return tx.Commit(ctx)
	}

	if !allowNoParent {
		var parentExists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM referrals WHERE address = $1)`, ref.ParentAddress[:]).Scan(&parentExists); err != nil {
			return err
		}
		if !parentExists {
			return fmt.Errorf("store: parent referral missing for %s", ref.Address)
		}
	}

	hash := ref.GetHash()
	_, err = tx.Exec(ctx, `
		INSERT INTO referrals (address, hash, address_type, parent_address, pubkey, signature, alias, version, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ref.Address[:], hash[:], int16(ref.AddressType), ref.ParentAddress[:], ref.Pubkey, ref.Signature, ref.Alias, ref.Version, height)
	if err != nil {
		return fmt.Errorf("store: inserting referral: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO anv (address, num, den) VALUES ($1, 0, 1)`, ref.Address[:])
	if err != nil {
		return fmt.Errorf("store: seeding anv: %w", err)
	}

	return tx.Commit(ctx)
}

// RemoveReferral reverses InsertReferral for one address.
func (s *Store) RemoveReferral(ctx context.Context, address refdomain.Address) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM referrals WHERE address = $1`, address[:]); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM anv WHERE address = $1`, address[:]); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetReferral looks up a referral by its beaconed address.
func (s *Store) GetReferral(ctx context.Context, address refdomain.Address) (refdomain.Referral, bool, error) {
	return s.scanReferral(ctx, `SELECT address, address_type, parent_address, pubkey, signature, alias, version
		FROM referrals WHERE address = $1`, address[:])
}

// GetReferralByHash looks up a referral by the HASH256 of its canonical
// serialization, as stored in referrals.hash on insert.
func (s *Store) GetReferralByHash(ctx context.Context, hash pghash.Hash256) (refdomain.Referral, bool, error) {
	return s.scanReferral(ctx, `SELECT address, address_type, parent_address, pubkey, signature, alias, version
		FROM referrals WHERE hash = $1`, hash[:])
}

// GetReferralByAlias looks up a confirmed referral by alias. Only
// referrals with an active confirmation row are candidates — mirroring
// refdb.cpp, which resolves alias lookups against the confirmed set, not
// the raw referral table. Comparison runs through alias.Equal rather
// than SQL, since safe-grammar mode tolerates a single adjacent
// transposition that LOWER()-folding can't express.
func (s *Store) GetReferralByAlias(ctx context.Context, target string, height, saferAliasHeight int) (refdomain.Referral, bool, error) {
	safe := height >= saferAliasHeight

	rows, err := s.pool.Query(ctx, `
		SELECT r.address, r.address_type, r.parent_address, r.pubkey, r.signature, r.alias, r.version
		FROM referrals r
		JOIN confirmations c ON c.address = r.address
		WHERE r.alias <> ''`)
	if err != nil {
		return refdomain.Referral{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			addressB, parentB, pubkey, signature []byte
			addressType                          int16
			candidateAlias                       string
			version                               int32
		)
		if err := rows.Scan(&addressB, &addressType, &parentB, &pubkey, &signature, &candidateAlias, &version); err != nil {
			return refdomain.Referral{}, false, err
		}
		if !alias.Equal(target, candidateAlias, safe) {
			continue
		}

		ref := refdomain.Referral{
			Version:       version,
			ParentAddress: refdomain.AddressFromBytes(parentB),
			AddressType:   refdomain.AddressType(addressType),
			Address:       refdomain.AddressFromBytes(addressB),
			Pubkey:        pubkey,
			Signature:     signature,
			Alias:         candidateAlias,
		}.ToMutable().ToReferral()
		return ref, true, nil
	}
	return refdomain.Referral{}, false, rows.Err()
}

func (s *Store) scanReferral(ctx context.Context, query string, args ...any) (refdomain.Referral, bool, error) {
	row := s.pool.QueryRow(ctx, query, args...)

	var (
		addressB, parentB, pubkey, signature []byte
		addressType                          int16
		refAlias                             string
		version                              int32
	)
	if err := row.Scan(&addressB, &addressType, &parentB, &pubkey, &signature, &refAlias, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return refdomain.Referral{}, false, nil
		}
		return refdomain.Referral{}, false, err
	}

	// The address stored is already the derived beaconed address; build
	// the referral directly rather than re-deriving via NewMutableReferral.
	ref := refdomain.Referral{
		Version:       version,
		ParentAddress: refdomain.AddressFromBytes(parentB),
		AddressType:   refdomain.AddressType(addressType),
		Address:       refdomain.AddressFromBytes(addressB),
		Pubkey:        pubkey,
		Signature:     signature,
		Alias:         refAlias,
	}.ToMutable().ToReferral()
	return ref, true, nil
}

// Children returns the direct children of address, for CGS tree walks.
func (s *Store) Children(ctx context.Context, address refdomain.Address) ([]refdomain.Address, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM referrals WHERE parent_address = $1`, address[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var children []refdomain.Address
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		children = append(children, refdomain.AddressFromBytes(b))
	}
	return children, rows.Err()
}

// ParentKnown reports whether address already has a stored referral: the
// question orderer.ParentKnown asks, with a leading context argument that
// orderer.ParentKnown's signature lacks.
func (s *Store) ParentKnown(ctx context.Context, address refdomain.Address) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM referrals WHERE address = $1)`, address[:]).Scan(&exists)
	return exists, err
}

// --- ANV (implements anv.Store) --------------------------------------

// GetANV reads an address's current rational ANV.
func (s *Store) GetANV(address refdomain.Address) (anv.Value, bool, error) {
	var numStr, denStr string
	err := s.pool.QueryRow(context.Background(),
		`SELECT num, den FROM anv WHERE address = $1`, address[:]).Scan(&numStr, &denStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return anv.Value{}, false, nil
		}
		return anv.Value{}, false, err
	}

	num, ok := new(big.Int).SetString(numStr, 10)
	if !ok {
		return anv.Value{}, false, fmt.Errorf("store: malformed anv numerator %q", numStr)
	}
	den, ok := new(big.Int).SetString(denStr, 10)
	if !ok {
		return anv.Value{}, false, fmt.Errorf("store: malformed anv denominator %q", denStr)
	}
	return anv.Value{Num: num, Den: den}, true, nil
}

// SetANV writes an address's rational ANV, upserting.
func (s *Store) SetANV(address refdomain.Address, v anv.Value) error {
	_, err := s.pool.Exec(context.Background(), `
		INSERT INTO anv (address, num, den) VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET num = EXCLUDED.num, den = EXCLUDED.den`,
		address[:], v.Num.String(), v.Den.String())
	return err
}

// GetParent returns address's parent referral's type and address, as
// anv.Store and lottery.Add need for the ancestor walk.
func (s *Store) GetParent(address refdomain.Address) (refdomain.AddressType, refdomain.Address, bool, error) {
	var parentB []byte
	err := s.pool.QueryRow(context.Background(),
		`SELECT parent_address FROM referrals WHERE address = $1`, address[:]).Scan(&parentB)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, refdomain.Address{}, false, nil
		}
		return 0, refdomain.Address{}, false, err
	}
	parent := refdomain.AddressFromBytes(parentB)

	var parentType int16
	err = s.pool.QueryRow(context.Background(),
		`SELECT address_type FROM referrals WHERE address = $1`, parentB).Scan(&parentType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, refdomain.Address{}, false, nil
		}
		return 0, refdomain.Address{}, false, err
	}

	return refdomain.AddressType(parentType), parent, true, nil
}

// --- Confirmation ledger ----------------------------------------------

// UpdateConfirmation applies a delta to address's outstanding invite
// count, assigning it the next confirmation index on first confirmation,
// and removing the trailing confirmation if its count returns to zero —
// ported from refdb.cpp's UpdateConfirmation.
func (s *Store) UpdateConfirmation(ctx context.Context, addressType refdomain.AddressType, address refdomain.Address, delta int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	total, err := totalConfirmations(ctx, tx)
	if err != nil {
		return 0, err
	}

	var (
		idx     int64
		invites int
		found   bool
	)
	err = tx.QueryRow(ctx, `SELECT idx, invites FROM confirmations WHERE address = $1`, address[:]).Scan(&idx, &invites)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		found = false
	case err != nil:
		return 0, err
	default:
		found = true
	}

	if !found {
		idx = int64(total)
		invites = delta
		_, err = tx.Exec(ctx, `INSERT INTO confirmations (idx, address, address_type, invites, confirmed_height) VALUES ($1, $2, $3, $4, 0)`,
			idx, address[:], int16(addressType), invites)
		if err != nil {
			return 0, err
		}
		if err := setTotalConfirmations(ctx, tx, total+1); err != nil {
			return 0, err
		}
	} else {
		invites += delta
		if invites == 0 && idx == int64(total)-1 {
			if _, err := tx.Exec(ctx, `DELETE FROM confirmations WHERE address = $1`, address[:]); err != nil {
				return 0, err
			}
			if err := setTotalConfirmations(ctx, tx, total-1); err != nil {
				return 0, err
			}
			return 0, tx.Commit(ctx)
		}
		if _, err := tx.Exec(ctx, `UPDATE confirmations SET invites = $1 WHERE address = $2`, invites, address[:]); err != nil {
			return 0, err
		}
	}

	return invites, tx.Commit(ctx)
}

func totalConfirmations(ctx context.Context, tx pgx.Tx) (uint64, error) {
	var total int64
	err := tx.QueryRow(ctx, `SELECT total FROM confirmation_total WHERE singleton`).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return uint64(total), err
}

func setTotalConfirmations(ctx context.Context, tx pgx.Tx, total uint64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO confirmation_total (singleton, total) VALUES (TRUE, $1)
		ON CONFLICT (singleton) DO UPDATE SET total = EXCLUDED.total`, int64(total))
	return err
}

// TotalConfirmations implements invites.Store / ambassador lookups.
func (s *Store) TotalConfirmations() (uint64, error) {
	ctx := context.Background()
	var total int64
	err := s.pool.QueryRow(ctx, `SELECT total FROM confirmation_total WHERE singleton`).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return uint64(total), err
}

// IsConfirmed implements ambassador.Confirmer.
func (s *Store) IsConfirmed(address refdomain.Address) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(context.Background(),
		`SELECT EXISTS(SELECT 1 FROM confirmations WHERE address = $1)`, address[:]).Scan(&exists)
	return exists, err
}

// ConfirmationByIndex implements invites.Store.
func (s *Store) ConfirmationByIndex(idx uint64) (models.ConfirmedAddress, bool, error) {
	return s.scanConfirmation(`SELECT address, address_type, invites, confirmed_height FROM confirmations WHERE idx = $1`, int64(idx))
}

// ConfirmationByAddress implements invites.Store.
func (s *Store) ConfirmationByAddress(addressType refdomain.AddressType, address refdomain.Address) (models.ConfirmedAddress, bool, error) {
	return s.scanConfirmation(`SELECT address, address_type, invites, confirmed_height FROM confirmations WHERE address = $1 AND address_type = $2`, address[:], int16(addressType))
}

func (s *Store) scanConfirmation(query string, args ...any) (models.ConfirmedAddress, bool, error) {
	var (
		addressB     []byte
		addressType  int16
		invites      int
		confirmedAt  int
	)
	err := s.pool.QueryRow(context.Background(), query, args...).Scan(&addressB, &addressType, &invites, &confirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ConfirmedAddress{}, false, nil
		}
		return models.ConfirmedAddress{}, false, err
	}
	return models.ConfirmedAddress{
		AddressType: refdomain.AddressType(addressType),
		Address:     refdomain.AddressFromBytes(addressB),
		Invites:     invites,
		ConfirmedAt: confirmedAt,
	}, true, nil
}

// NewInviteRewardedHeight implements invites.Store.
func (s *Store) NewInviteRewardedHeight(address refdomain.Address) (int, error) {
	var height int
	err := s.pool.QueryRow(context.Background(),
		`SELECT height FROM new_invite_rewarded_height WHERE address = $1`, address[:]).Scan(&height)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return height, err
}

// SetNewInviteRewardedHeight records the height at which address first
// received a new-pool invite reward, so it is not drawn from the new
// pool again.
func (s *Store) SetNewInviteRewardedHeight(ctx context.Context, address refdomain.Address, height int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO new_invite_rewarded_height (address, height) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET height = EXCLUDED.height`, address[:], height)
	return err
}

// ConfirmAllPreEpoch bulk-confirms every stored referral with exactly
// one invite, for addresses with no existing confirmation row —
// ported from refdb.cpp's ConfirmAllPreDaedalusAddresses, which confirms
// the entire referral set unconditionally rather than gating on height.
// It is a one-shot migration: a sentinel row guards against a second
// call silently confirming referrals that arrived afterward.
func (s *Store) ConfirmAllPreEpoch(ctx context.Context) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var alreadyDone bool
	err = tx.QueryRow(ctx, `SELECT confirmed FROM pre_epoch_confirmation_state WHERE singleton`).Scan(&alreadyDone)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if alreadyDone {
		return 0, tx.Commit(ctx)
	}

	total, err := totalConfirmations(ctx, tx)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO confirmations (idx, address, address_type, invites, confirmed_height)
		SELECT
			ROW_NUMBER() OVER (ORDER BY r.address) - 1 + $1,
			r.address, r.address_type, 1, r.height
		FROM referrals r
		LEFT JOIN confirmations c ON c.address = r.address
		WHERE c.address IS NULL`, int64(total))
	if err != nil {
		return 0, err
	}

	if err := setTotalConfirmations(ctx, tx, total+uint64(tag.RowsAffected())); err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO pre_epoch_confirmation_state (singleton, confirmed) VALUES (TRUE, TRUE)
		ON CONFLICT (singleton) DO UPDATE SET confirmed = TRUE`)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), tx.Commit(ctx)
}

// PreEpochConfirmed reports whether ConfirmAllPreEpoch has already run.
func (s *Store) PreEpochConfirmed(ctx context.Context) (bool, error) {
	var confirmed bool
	err := s.pool.QueryRow(ctx, `SELECT confirmed FROM pre_epoch_confirmation_state WHERE singleton`).Scan(&confirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return confirmed, err
}
