// Package store keeps the latest record set of every node and publishes
// the changes between consecutive polls.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Change]: What a poll added, updated and withdrew for one node
//
// A failed poll never withdraws records: the previous set stays current
// and only the node status records the failure. Expiring records that
// stop appearing is left to the consumer of the change stream.
//
// Subscribers receive changes via channels with non-blocking sends (slow
// subscribers will miss changes rather than block the system).
package store
