package refdomain

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/meritpog/pog-engine/internal/pghash"
)

// VerifySignature checks that signature is a valid DER-encoded ECDSA
// signature over hash by the compressed public key pubkey, mirroring the
// reference chain's beacon-signature check in CheckReferralSignature.
func VerifySignature(pubkey []byte, hash pghash.Hash256, signature []byte) (bool, error) {
	pk, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return false, err
	}

	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false, err
	}

	return sig.Verify(hash[:], pk), nil
}

// Sign produces a DER-encoded ECDSA signature over hash with priv,
// mirroring the reference wallet's referral-beaconing signer.
func Sign(priv *btcec.PrivateKey, hash pghash.Hash256) []byte {
	return ecdsa.Sign(priv, hash[:]).Serialize()
}
