package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// Ed25519Verifier verifies detached Ed25519 signatures produced by wallet signMessage.
type Ed25519Verifier struct{}

// NewEd25519Verifier creates a new verifier
func NewEd25519Verifier() ports.SignatureVerifier {
	return Ed25519Verifier{}
}

// Verify reports whether signature is a valid signature of message by wallet's key.
func (Ed25519Verifier) Verify(wallet, message, signature string) bool {
	pub, err := core.DecodeWalletAddress(wallet)
	if err != nil {
		return false
	}
	sig, ok := DecodeSignature(signature)
	if !ok {
		return false
	}
	return ed25519.Verify(pub, []byte(message), sig)
}

// DecodeSignature accepts base58 (wallet default), 0x-prefixed hex or base64
// and returns the raw 64-byte signature.
func DecodeSignature(s string) ([]byte, bool) {
	var (
		raw []byte
		err error
	)
	switch {
	case s == "":
		return nil, false
	case strings.HasPrefix(s, "0x"):
		raw, err = hexutil.Decode(s)
	default:
		raw, err = base58.Decode(s)
		if err != nil || len(raw) != ed25519.SignatureSize {
			raw, err = base64.StdEncoding.DecodeString(s)
		}
	}
	if err != nil || len(raw) != ed25519.SignatureSize {
		return nil, false
	}
	return raw, true
}
