// Package models holds the wire/storage DTOs shared across the engine's
// packages and its HTTP API, JSON-tagged throughout.
package models

import (
	"github.com/google/uuid"

	"github.com/meritpog/pog-engine/internal/refdomain"
)

// ConfirmedAddress is one beaconed-and-confirmed referral, as exposed by
// the confirmation ledger and consumed by the invite pool sampler.
// Mirrors referral::ConfirmedAddress.
type ConfirmedAddress struct {
	AddressType  refdomain.AddressType `json:"address_type"`
	Address      refdomain.Address     `json:"address"`
	Invites      int                   `json:"invites"`
	ConfirmedAt  int                   `json:"confirmed_height"`
}

// Entrant is a public projection of a CGS-scored address. The selection
// endpoints in internal/api respond with cgs.Entrant values, not this
// type.
type Entrant struct {
	AddressType refdomain.AddressType `json:"address_type"`
	Address     refdomain.Address     `json:"address"`
	Balance     int64                 `json:"balance"`
	AgedBalance int64                 `json:"aged_balance"`
	CGS         int64                 `json:"cgs"`
	SubCGS      int64                 `json:"sub_cgs"`
	NetworkSize int                   `json:"network_size"`
}

// LotteryUndo is the serialized form of one reservoir-slot change,
// recorded so a block disconnect can replay it in reverse. AuditID is
// the undo record's own identity in the audit log, independent of
// block height and position within the batch.
type LotteryUndo struct {
	AuditID             uuid.UUID             `json:"audit_id"`
	BlockHeight         int                   `json:"block_height"`
	ReplacedKey         float64               `json:"replaced_key"`
	ReplacedAddressType refdomain.AddressType `json:"replaced_address_type"`
	ReplacedAddress     refdomain.Address     `json:"replaced_address"`
	ReplacedWith        refdomain.Address     `json:"replaced_with"`
}
