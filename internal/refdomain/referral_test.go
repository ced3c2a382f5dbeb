package refdomain

import (
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func TestNewMutableReferralKeyIDKeepsAddress(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	pubkey := priv.PubKey().SerializeCompressed()

	var addressIn Address
	addressIn[0] = 42

	r := NewMutableReferral(KeyID, addressIn, pubkey, Address{}, "", CurrentVersion)
	if r.GetAddress() != addressIn {
		t.Errorf("KeyID referral address = %v, want unmixed %v", r.GetAddress(), addressIn)
	}
}

func TestNewMutableReferralScriptIDMixesAddress(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	pubkey := priv.PubKey().SerializeCompressed()

	var addressIn Address
	addressIn[0] = 42

	r := NewMutableReferral(ScriptID, addressIn, pubkey, Address{}, "", CurrentVersion)
	if r.GetAddress() == addressIn {
		t.Error("expected ScriptID referral address to be mixed, not identical to addressIn")
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	pubkey := priv.PubKey().SerializeCompressed()

	var parent Address
	parent[0] = 1

	r := NewMutableReferral(KeyID, parent, pubkey, parent, "alice", InviteVersion)
	r.Signature = Sign(priv, r.SigningHash())

	ok, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("expected a signature produced by the beaconing key to verify")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	otherPriv, _ := btcec.NewPrivateKey()
	pubkey := priv.PubKey().SerializeCompressed()

	var parent Address
	parent[0] = 1

	r := NewMutableReferral(KeyID, parent, pubkey, parent, "", CurrentVersion)
	r.Signature = Sign(otherPriv, r.SigningHash())

	ok, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("expected a signature from a different key to fail verification")
	}
}

func TestToReferralRoundTrip(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	pubkey := priv.PubKey().SerializeCompressed()

	var parent Address
	parent[0] = 5

	m := NewMutableReferral(KeyID, parent, pubkey, parent, "bob", InviteVersion)
	m.Signature = Sign(priv, m.SigningHash())

	r := m.ToReferral()
	if r.GetHash() != m.Hash() {
		t.Error("expected ToReferral to preserve the mutable form's hash")
	}

	back := r.ToMutable()
	if back.GetAddress() != m.GetAddress() {
		t.Error("expected ToMutable to preserve the derived address")
	}
}

func TestSerializeDeterministic(t *testing.T) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	priv, _ := btcec.NewPrivateKey()
	pubkey := priv.PubKey().SerializeCompressed()
	r := NewMutableReferral(KeyID, AddressFromBytes(buf[:20]), pubkey, Address{}, "x", CurrentVersion)

	if string(r.Serialize()) != string(r.Serialize()) {
		t.Error("expected Serialize to be deterministic")
	}
}
