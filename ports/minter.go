package ports

import (
	"context"

	"github.com/solquestio/solquestio-sub002/core"
)

// Minter performs the external ledger write. It is slow and not idempotent.
type Minter interface {
	Mint(ctx context.Context, tokenID int64, recipient string, metadata core.MintMetadata) (core.MintReceipt, error)
}

// MintLookup is implemented by minters that can tell whether a token already exists on-ledger.
type MintLookup interface {
	Lookup(ctx context.Context, tokenID int64) (receipt core.MintReceipt, found bool, err error)
}

// MetadataStore publishes token metadata and returns the URI the minter should reference
type MetadataStore interface {
	Publish(ctx context.Context, tokenID int64, metadata core.MintMetadata) (string, error)
}
