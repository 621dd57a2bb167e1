package metadata

import (
	"context"
	"strconv"
	"strings"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// StaticStore does not upload anything; it points each token at
// <baseURI><tokenID>.json, served by whatever hosts the collection.
type StaticStore struct {
	baseURI string
}

func NewStaticStore(baseURI string) *StaticStore {
	if !strings.HasSuffix(baseURI, "/") {
		baseURI += "/"
	}
	return &StaticStore{baseURI: baseURI}
}

var _ ports.MetadataStore = (*StaticStore)(nil)

func (s *StaticStore) Publish(ctx context.Context, tokenID int64, metadata core.MintMetadata) (string, error) {
	return s.baseURI + objectName(tokenID), nil
}

func objectName(tokenID int64) string {
	return strconv.FormatInt(tokenID, 10) + ".json"
}
