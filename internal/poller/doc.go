// Package poller queries remote search APIs and turns their JSON results into
// records.
//
// The main components are:
//
//   - [BuildRequest]: chooses the request's authentication from configuration and current credentials
//   - [Client]: HTTP client with per-request timeouts, size limits and per-identity TLS transports
//   - [Mapper]: projects one extracted item into a [Record]
//   - [Poller]: one node; runs a single query and returns its records
//   - [Scheduler]: polls many nodes on their intervals with a worker pool
//
// Users of the feedminer library should not need to interact with this
// package directly. Configuration is done through the main feedminer package.
package poller
