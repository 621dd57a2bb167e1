package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/solquestio/solquestio-sub002/core"
)

// ChallengeTimeFormat is RFC 3339 in UTC with millisecond precision,
// e.g. 2024-05-01T12:00:00.000Z.
const ChallengeTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ChallengeIssuer builds sign-in messages and checks them on the way back.
// Nothing is stored: a returned message is re-derived from its wallet and
// timestamp and must match byte for byte.
type ChallengeIssuer struct {
	product string
	ttl     time.Duration
	skew    time.Duration
	now     func() time.Time
}

func NewChallengeIssuer(product string, ttl, skew time.Duration) *ChallengeIssuer {
	return &ChallengeIssuer{product: product, ttl: ttl, skew: skew, now: time.Now}
}

// Window bounds how long any single challenge can be accepted, counting the
// clock skew allowed for future-dated timestamps.
func (c *ChallengeIssuer) Window() time.Duration { return c.ttl + c.skew }

func (c *ChallengeIssuer) Issue(address string) (core.Challenge, error) {
	if err := core.ValidateWalletAddress(address); err != nil {
		return core.Challenge{}, err
	}
	issuedAt := c.now().UTC().Truncate(time.Millisecond)
	return core.Challenge{
		WalletAddress: address,
		IssuedAt:      issuedAt,
		Message:       c.message(address, issuedAt),
	}, nil
}

// Verify returns the challenge's issue time if message is a challenge this
// issuer produced for address and it is still within its window.
func (c *ChallengeIssuer) Verify(address, message string) (time.Time, error) {
	prefix := c.prefix(address)
	if !strings.HasPrefix(message, prefix) {
		return time.Time{}, core.ErrInvalidChallenge
	}
	issuedAt, err := time.Parse(ChallengeTimeFormat, strings.TrimPrefix(message, prefix))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp", core.ErrInvalidChallenge)
	}
	if c.message(address, issuedAt) != message {
		return time.Time{}, core.ErrInvalidChallenge
	}

	now := c.now()
	if issuedAt.After(now.Add(c.skew)) {
		return time.Time{}, fmt.Errorf("%w: issued in the future", core.ErrInvalidChallenge)
	}
	if now.Sub(issuedAt) > c.ttl {
		return time.Time{}, core.ErrChallengeExpired
	}
	return issuedAt, nil
}

func (c *ChallengeIssuer) prefix(address string) string {
	return fmt.Sprintf("Sign this message to authenticate with %s. Wallet: %s. Timestamp: ", c.product, address)
}

func (c *ChallengeIssuer) message(address string, issuedAt time.Time) string {
	return c.prefix(address) + issuedAt.UTC().Format(ChallengeTimeFormat)
}
