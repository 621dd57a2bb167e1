package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/internal/logger"
)

type testWallet struct {
	Address string
	key     ed25519.PrivateKey
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return testWallet{Address: core.EncodeWalletAddress(pub), key: priv}
}

func (w testWallet) Sign(message string) string {
	return base58.Encode(ed25519.Sign(w.key, []byte(message)))
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	logins []core.UserAccount
	claims []core.ClaimRecord
}

func (p *recordingPublisher) PublishLogin(_ context.Context, u core.UserAccount) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logins = append(p.logins, u)
	return nil
}

func (p *recordingPublisher) PublishClaim(_ context.Context, r core.ClaimRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claims = append(p.claims, r)
	return nil
}

func (p *recordingPublisher) Claims() []core.ClaimRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.ClaimRecord(nil), p.claims...)
}

var testLog = logger.NewNoop()
