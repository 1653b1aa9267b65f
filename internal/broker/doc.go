// Package broker connects gateway instances to the shared messaging fabric.
//
// # Bus
//
// KafkaBus implements the Bus interface on Kafka. Each instance joins its
// own consumer group derived from GroupPrefix, so every instance receives
// every record on the topics it subscribes to. Topics follow three shapes:
//
//   - channel:<id>          persisted chat messages for one channel
//   - channel:<id>:typing   typing indicators for one channel
//   - presence:updates      presence transitions for all users
//
// Subscription is reference counted per topic: the first local handler adds
// the topic to the Kafka subscription, the last removal purges it. Publish
// uses acks=all and retries with exponential backoff capped at two seconds;
// the caller decides whether a final failure is fatal.
//
// # KV
//
// RedisKV holds the volatile state that must be visible across instances
// but never durable: user:presence:<id> keys with a five minute TTL and
// typing:<channel> hashes with a ten second TTL. Both expire on their own,
// so a crashed instance leaks nothing permanent.
//
// # Events
//
// EventConsumer is separate from the fan-out path. It joins the shared
// analytics consumer group and decodes message lifecycle events, skipping
// records that fail to parse.
package broker
