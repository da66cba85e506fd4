package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/pkg/errors"
)

const (
	maxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedLengthExceeded  = errors.New("max seed length exceeded")
	ErrInvalidPublicKeyLength = errors.New("invalid public key length")
	ErrIllegalOwner           = errors.New("illegal owner")
)

// CreateWithSeed mirrors the implementation of the Solana SDK's CreateWithSeed.
//
// The derived address is sha256(base || seed || owner). Unlike program derived
// addresses, there's no curve check, so the address may have a private key, but
// nobody is expected to know it. Owners that look like a program derived address
// are rejected to keep the two derivation schemes apart.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L136
func CreateWithSeed(base ed25519.PublicKey, seed string, owner ed25519.PublicKey) (ed25519.PublicKey, error) {
	if len(base) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(ErrInvalidPublicKeyLength, "base is %d bytes", len(base))
	}
	if len(owner) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(ErrInvalidPublicKeyLength, "owner is %d bytes", len(owner))
	}
	if len(seed) > maxSeedLength {
		return nil, ErrMaxSeedLengthExceeded
	}
	if bytes.HasSuffix(owner, []byte(pdaMarker)) {
		return nil, ErrIllegalOwner
	}

	h := sha256.New()
	for _, v := range [][]byte{base, []byte(seed), owner} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	return h.Sum(nil)[:ed25519.PublicKeySize], nil
}
