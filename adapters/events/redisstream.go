package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
)

// NewRedisStreamPublisher publishes onto Redis streams, one stream per topic.
// The caller owns the returned message publisher and must close it.
func NewRedisStreamPublisher(client redis.UniversalClient, topicPrefix string, logger watermill.LoggerAdapter) (*WatermillPublisher, *redisstream.Publisher, error) {
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
	}
	return NewWatermillPublisher(publisher, topicPrefix), publisher, nil
}
