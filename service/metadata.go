package service

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/solquestio/solquestio-sub002/core"
)

var hundred = decimal.NewFromInt(100)

// MetadataTemplate holds the collection-wide parts of token metadata
type MetadataTemplate struct {
	Name                 string
	Symbol               string
	SellerFeeBasisPoints int64
}

// NewMetadataTemplate converts a royalty percentage such as "5" or "2.5"
// into basis points. Percentages with sub-basis-point precision are rejected.
func NewMetadataTemplate(name, symbol, royaltyPercent string) (MetadataTemplate, error) {
	pct, err := decimal.NewFromString(royaltyPercent)
	if err != nil {
		return MetadataTemplate{}, fmt.Errorf("invalid royalty percent %q: %w", royaltyPercent, err)
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return MetadataTemplate{}, fmt.Errorf("royalty percent %s out of range", pct)
	}
	bps := pct.Mul(hundred)
	if !bps.Equal(bps.Truncate(0)) {
		return MetadataTemplate{}, fmt.Errorf("royalty percent %s is finer than one basis point", pct)
	}
	return MetadataTemplate{Name: name, Symbol: symbol, SellerFeeBasisPoints: bps.IntPart()}, nil
}

// Build returns the metadata for one token of the collection. URI is left for the MetadataStore.
func (t MetadataTemplate) Build(tokenID int64) core.MintMetadata {
	edition := strconv.FormatInt(tokenID, 10)
	return core.MintMetadata{
		Name:                 fmt.Sprintf("%s #%d", t.Name, tokenID),
		Symbol:               t.Symbol,
		SellerFeeBasisPoints: t.SellerFeeBasisPoints,
		Attributes: []core.MintAttribute{
			{TraitType: "edition", Value: edition},
			{TraitType: "tier", Value: "OG"},
		},
	}
}
