package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

const (
	TopicLogin = "auth.login"
	// claim topics are suffixed with the lower-cased claim status
	TopicClaimPrefix = "claim."
)

// LoginEvent is published after a wallet signs in
type LoginEvent struct {
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	XP            int64     `json:"xp"`
	At            time.Time `json:"at"`
}

// ClaimEvent is published whenever a claim reaches MINTED or FAILED
type ClaimEvent struct {
	WalletAddress string           `json:"wallet_address"`
	TokenID       int64            `json:"token_id"`
	Status        core.ClaimStatus `json:"status"`
	Attempts      int              `json:"attempts"`
	Signature     string           `json:"signature,omitempty"`
	MintAddress   string           `json:"mint_address,omitempty"`
	At            time.Time        `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	prefix    string
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher. Every topic is
// prefixed with topicPrefix, e.g. "solquest.claim.minted".
func NewWatermillPublisher(publisher message.Publisher, topicPrefix string) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		prefix:    topicPrefix,
		now:       time.Now,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// ClaimTopic returns the unprefixed topic a claim in the given status is published on.
func ClaimTopic(status core.ClaimStatus) string {
	return TopicClaimPrefix + strings.ToLower(string(status))
}

// PublishLogin publishes a login event
func (p *WatermillPublisher) PublishLogin(ctx context.Context, user core.UserAccount) error {
	event := LoginEvent{
		UserID:        user.ID,
		WalletAddress: user.WalletAddress,
		XP:            user.XP,
		At:            p.now().UTC(),
	}
	return p.publish(ctx, TopicLogin, user.WalletAddress, event)
}

// PublishClaim publishes a claim outcome event
func (p *WatermillPublisher) PublishClaim(ctx context.Context, record core.ClaimRecord) error {
	event := ClaimEvent{
		WalletAddress: record.WalletAddress,
		TokenID:       record.TokenID,
		Status:        record.Status,
		Attempts:      record.Attempts,
		At:            p.now().UTC(),
	}
	if record.Receipt != nil {
		event.Signature = record.Receipt.Signature
		event.MintAddress = record.Receipt.MintAddress
	}
	return p.publish(ctx, ClaimTopic(record.Status), record.WalletAddress, event)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, wallet string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("wallet", wallet)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.prefix+topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event. It is used when publishing is disabled.
type NopPublisher struct{}

var _ ports.EventPublisher = NopPublisher{}

func (NopPublisher) PublishLogin(context.Context, core.UserAccount) error { return nil }
func (NopPublisher) PublishClaim(context.Context, core.ClaimRecord) error { return nil }
