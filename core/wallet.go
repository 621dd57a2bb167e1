package core

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

const (
	minAddressLen = 32
	maxAddressLen = 44
)

// DecodeWalletAddress decodes a base58 wallet address into its Ed25519 public key.
func DecodeWalletAddress(address string) (ed25519.PublicKey, error) {
	if len(address) < minAddressLen || len(address) > maxAddressLen {
		return nil, ErrInvalidAddress
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidAddress
	}
	return ed25519.PublicKey(raw), nil
}

// ValidateWalletAddress returns ErrInvalidAddress unless address is a well-formed wallet address.
func ValidateWalletAddress(address string) error {
	_, err := DecodeWalletAddress(address)
	return err
}

// EncodeWalletAddress is the inverse of DecodeWalletAddress.
func EncodeWalletAddress(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}
