package core

import (
	"fmt"
	"time"
)

// ClaimStatus is the per-wallet claim state.
//
//	NONE -> RESERVED -> MINTED
//	             \----> FAILED -> RESERVED
type ClaimStatus string

const (
	ClaimNone     ClaimStatus = "NONE"
	ClaimReserved ClaimStatus = "RESERVED"
	ClaimMinted   ClaimStatus = "MINTED"
	ClaimFailed   ClaimStatus = "FAILED"
)

// Terminal reports whether s is a status Finalize may move a reservation to.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimMinted || s == ClaimFailed
}

// ParseClaimStatus converts a stored status string back into a ClaimStatus.
func ParseClaimStatus(s string) (ClaimStatus, error) {
	switch st := ClaimStatus(s); st {
	case ClaimNone, ClaimReserved, ClaimMinted, ClaimFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown claim status %q", s)
}

// ClaimRecord is the authoritative claim state of one wallet
type ClaimRecord struct {
	WalletAddress string       `json:"walletAddress"`
	Status        ClaimStatus  `json:"status"`
	TokenID       int64        `json:"tokenId"`
	Receipt       *MintReceipt `json:"receipt,omitempty"`
	Attempts      int          `json:"attempts"`
	ReservedAt    time.Time    `json:"reservedAt"`
	FinalizedAt   *time.Time   `json:"finalizedAt,omitempty"`
}

// Reservation is the result of a successful slot reservation.
// Retry is set when a FAILED claim was re-reserved with its original token id.
type Reservation struct {
	TokenID int64
	Retry   bool
}

// SupplySnapshot is a point-in-time read of the supply counter
type SupplySnapshot struct {
	Issued    int64
	MaxSupply int64
}

func (s SupplySnapshot) Remaining() int64 {
	if s.Issued >= s.MaxSupply {
		return 0
	}
	return s.MaxSupply - s.Issued
}

// NextTokenID is the id the next fresh reservation receives, or 0 when sold out.
func (s SupplySnapshot) NextTokenID() int64 {
	if s.Remaining() == 0 {
		return 0
	}
	return s.Issued + 1
}

// MintReceipt is the external ledger's confirmation of a mint
type MintReceipt struct {
	Signature   string    `json:"signature"`
	MintAddress string    `json:"mintAddress"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// MintAttribute is a single trait in token metadata
type MintAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// MintMetadata is the token metadata handed to the minter
type MintMetadata struct {
	Name                 string          `json:"name"`
	Symbol               string          `json:"symbol"`
	URI                  string          `json:"uri"`
	SellerFeeBasisPoints int64           `json:"seller_fee_basis_points"`
	Attributes           []MintAttribute `json:"attributes,omitempty"`
}

type MintResult struct {
	TokenID int64       `json:"tokenId"`
	Receipt MintReceipt `json:"receipt"`
}

// Eligibility is a read-only view of whether a wallet can claim right now
type Eligibility struct {
	Eligible    bool   `json:"eligible"`
	Reason      string `json:"reason"`
	Remaining   int64  `json:"remaining"`
	NextTokenID int64  `json:"nextTokenId"`
}
