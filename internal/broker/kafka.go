// ABOUTME: Kafka-backed Bus connecting gateway instances through fan-out topics
// ABOUTME: Dynamic topic subscription on a per-instance consumer group

package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	publishAttempts   = 4
	publishBackoffMin = 250 * time.Millisecond
	publishBackoffMax = 2 * time.Second

	fetchMaxWait     = 500 * time.Millisecond
	sessionTimeout   = 30 * time.Second
	rebalanceTimeout = 60 * time.Second
	pingTimeout      = 5 * time.Second
)

// BusConfig configures a KafkaBus.
type BusConfig struct {
	// Seeds are the bootstrap broker addresses.
	Seeds []string
	// GroupPrefix names the service; the bus derives a per-instance
	// consumer group from it so every instance sees every fan-out record.
	GroupPrefix string
	Logger      *slog.Logger
}

// KafkaBus implements Bus on Kafka. One producer client publishes with
// acks=all; one consumer client on a per-instance group tails subscribed
// topics from their latest offset and dispatches records to handlers.
type KafkaBus struct {
	producer *kgo.Client
	consumer *kgo.Client
	registry *registry
	logger   *slog.Logger

	instanceID string
	group      string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewKafkaBus connects both clients and starts the poll loop.
func NewKafkaBus(cfg BusConfig) (*KafkaBus, error) {
	if len(cfg.Seeds) == 0 {
		return nil, fmt.Errorf("at least one seed broker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bus")

	instanceID := uuid.New().String()[:8]
	group := fmt.Sprintf("%s-fanout-%s", cfg.GroupPrefix, instanceID)

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Seeds...),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression(), kgo.NoCompression()),
		kgo.RecordDeliveryTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("creating producer client: %w", err)
	}

	// Fan-out topics are added and removed as local subscribers come and
	// go, so the consumer starts with no topics. AtEnd: fan-out wants new
	// records only, replay belongs to the analytics group.
	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Seeds...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.AllowAutoTopicCreation(),
		kgo.FetchMaxWait(fetchMaxWait),
		kgo.SessionTimeout(sessionTimeout),
		kgo.RebalanceTimeout(rebalanceTimeout),
	)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("creating consumer client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &KafkaBus{
		producer:   producer,
		consumer:   consumer,
		registry:   newRegistry(),
		logger:     logger,
		instanceID: instanceID,
		group:      group,
		ctx:        ctx,
		cancel:     cancel,
	}

	b.wg.Add(1)
	go b.pollLoop()

	logger.Info("bus started", "instance_id", instanceID, "group", group)
	return b, nil
}

// InstanceID returns the short identifier baked into the consumer group.
func (b *KafkaBus) InstanceID() string {
	return b.instanceID
}

// Publish produces one record with acks=all, retrying transient failures
// with exponential backoff capped at publishBackoffMax.
func (b *KafkaBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}

	rec := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}

	backoff := publishBackoffMin
	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, publishBackoffMax)
		}

		if err := b.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
			lastErr = err
			b.logger.Warn("publish failed",
				"topic", topic,
				"attempt", attempt,
				"error", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("publishing to %s: %w", topic, lastErr)
}

// Subscribe registers a handler. The first handler on a topic adds it to
// the consumer's subscription.
func (b *KafkaBus) Subscribe(topic string, h Handler) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}

	subID, first := b.registry.add(topic, h)
	if first {
		b.consumer.AddConsumeTopics(topic)
		b.logger.Debug("topic added", "topic", topic)
	}
	return subID, nil
}

// Unsubscribe removes a handler. The last handler on a topic removes it
// from the consumer's subscription.
func (b *KafkaBus) Unsubscribe(topic, subID string) {
	if b.registry.remove(topic, subID) {
		b.consumer.PurgeTopicsFromConsuming(topic)
		b.logger.Debug("topic removed", "topic", topic)
	}
}

// Connected reports whether the cluster answers a ping.
func (b *KafkaBus) Connected(ctx context.Context) bool {
	if b.closed.Load() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return b.producer.Ping(ctx) == nil
}

// Close stops the poll loop and closes both clients. Safe to call twice.
func (b *KafkaBus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.cancel()
	b.wg.Wait()
	b.consumer.Close()
	b.producer.Close()
	b.registry.clear()
	b.logger.Info("bus closed")
}

func (b *KafkaBus) pollLoop() {
	defer b.wg.Done()

	for {
		fetches := b.consumer.PollFetches(b.ctx)
		if b.ctx.Err() != nil || fetches.IsClientClosed() {
			return
		}
		for _, ferr := range fetches.Errors() {
			b.logger.Error("fetch error",
				"topic", ferr.Topic,
				"partition", ferr.Partition,
				"error", ferr.Err)
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			b.registry.dispatch(rec.Topic, rec.Value)
		})
	}
}
