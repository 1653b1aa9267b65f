// ABOUTME: Shared-group Kafka consumer for message lifecycle events
// ABOUTME: Feeds the analytics aggregator from the earliest unconsumed offset

package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/2389/signalink/internal/protocol"
)

// EventFunc handles one decoded event from the events topic.
type EventFunc func(event *protocol.MessageEvent)

// EventConsumer tails the message events topic on a shared consumer group,
// so analytics instances split partitions between them and resume from
// their committed offsets. New groups start from the earliest offset to
// pick up history.
type EventConsumer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewEventConsumer connects a group consumer for the given topic.
func NewEventConsumer(seeds []string, group, topic string, logger *slog.Logger) (*EventConsumer, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one seed broker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.AllowAutoTopicCreation(),
		kgo.FetchMaxWait(fetchMaxWait),
		kgo.SessionTimeout(sessionTimeout),
		kgo.RebalanceTimeout(rebalanceTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("creating event consumer: %w", err)
	}

	return &EventConsumer{
		client: client,
		logger: logger.With("component", "events"),
	}, nil
}

// Run polls until ctx is cancelled, invoking fn for each decoded event.
// Records that fail to decode are logged and skipped.
func (c *EventConsumer) Run(ctx context.Context, fn EventFunc) error {
	c.logger.Info("event consumer started")

	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if fetches.IsClientClosed() {
			return ErrClosed
		}
		for _, ferr := range fetches.Errors() {
			c.logger.Error("fetch error",
				"topic", ferr.Topic,
				"partition", ferr.Partition,
				"error", ferr.Err)
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			event, err := protocol.ParseMessageEvent(rec.Value)
			if err != nil {
				c.logger.Warn("skipping malformed event",
					"topic", rec.Topic,
					"partition", rec.Partition,
					"offset", rec.Offset,
					"error", err)
				return
			}
			fn(event)
		})
	}
}

// Connected reports whether the cluster answers a ping.
func (c *EventConsumer) Connected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.client.Ping(ctx) == nil
}

// Close leaves the group and releases the client.
func (c *EventConsumer) Close() {
	c.client.Close()
	c.logger.Info("event consumer closed")
}
