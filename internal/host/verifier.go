package host

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPublicKey = errors.New("host: invalid ed25519 public key")

// Verifier checks a signature over message against the configured signer.
type Verifier interface {
	Verify(message, signature []byte) bool
}

// Ed25519Verifier verifies with a single trusted signer key.
type Ed25519Verifier struct {
	pub ed25519.PublicKey
}

// NewEd25519Verifier parses a hex encoded 32-byte public key.
func NewEd25519Verifier(publicKeyHex string) (*Ed25519Verifier, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(publicKeyHex))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPublicKey, publicKeyHex)
	}
	return &Ed25519Verifier{pub: ed25519.PublicKey(raw)}, nil
}

// Verify implements Verifier.
func (v *Ed25519Verifier) Verify(message, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(v.pub, message, signature)
}

// RejectAll fails every verification. Used when no signer is configured.
type RejectAll struct{}

// Verify implements Verifier.
func (RejectAll) Verify([]byte, []byte) bool { return false }
