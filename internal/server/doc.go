// Package server provides the HTTP API of a running miner.
//
// It handles:
//
//   - REST API: node status at "/api/nodes" and current records at "/api/records"
//   - Server-Sent Events: record changes at "/api/sse"
//   - Node control: credential side config updates and reload signals
//   - Metrics: Prometheus exposition at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the feedminer library should not need to interact with this
// package directly. The server is started automatically by [feedminer.Miner.Start].
package server
