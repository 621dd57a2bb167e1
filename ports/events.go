package ports

import (
	"context"

	"github.com/solquestio/solquestio-sub002/core"
)

// EventPublisher publishes domain events to other instances and consumers
type EventPublisher interface {
	PublishLogin(ctx context.Context, user core.UserAccount) error
	PublishClaim(ctx context.Context, record core.ClaimRecord) error
}
