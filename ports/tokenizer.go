package ports

import (
	"time"

	"github.com/solquestio/solquestio-sub002/core"
)

// Tokenizer issues and validates stateless session tokens
type Tokenizer interface {
	Issue(userID, wallet string) (token string, expiresAt time.Time, err error)
	// Validate fails with an error wrapping core.ErrInvalidToken.
	Validate(token string) (core.Identity, error)
}

// SignatureVerifier checks a detached signature over message for the wallet's key.
// Malformed input yields false, never an error.
type SignatureVerifier interface {
	Verify(wallet, message, signature string) bool
}
