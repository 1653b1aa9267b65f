// Package store persists chat messages and aggregated metrics in MySQL.
//
// Two interfaces split the surface by consumer: MessageStore is what the
// gateway needs (a durable insert before fan-out), MetricsStore is what the
// analytics service needs (transactional window writes, the aggregate read
// queries behind the metrics API, and retention pruning). MySQLStore
// implements both; a process uses whichever side it was built for.
//
// Schema bootstrap is split the same way. InitChatSchema creates the users,
// channels, channel_members, and messages tables; InitMetricsSchema creates
// the three metrics tables without foreign keys so analytics can point at
// its own database.
package store
