// Package feedminer periodically queries authenticated remote search APIs and
// turns their JSON responses into indicator records.
//
// Each configured [Node] is one query against one API. On every poll the
// node's query string is POSTed to its URL, the JSON response is reduced to a
// list of items with a JMESPath expression, and every item that carries the
// node's indicator field becomes a [Record]: the indicator value plus the
// item's remaining fields as prefixed attributes.
//
// # Quick Start
//
//	n, _ := feedminer.NewNode("edge-logins", "https://search.example.com/api/v1/query",
//	    feedminer.WithQueryString(`#type=login | groupBy(src_ip)`),
//	    feedminer.WithExtractor("events"),
//	    feedminer.WithIndicator("src_ip"),
//	    feedminer.WithPrefix("logins"),
//	)
//	m, _ := feedminer.New(feedminer.WithNode(n))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	m.Start(ctx) // blocks until context is cancelled
//
// # Authentication
//
// A node authenticates with, in order of precedence:
//
//   - a client certificate, when [WithClientCertRequired] is set and both the
//     certificate and key files are readable
//   - basic auth, when both a username and a password are known
//   - nothing
//
// Credentials come from [WithCredentials] and may be replaced at runtime by a
// side config file, {config_dir}/{name}_side_config.yml, holding username and
// password keys. The side config is read when the node is created and again
// on every [Miner.Hup]; an incomplete side config never replaces complete
// credentials. Certificate files are read on every TLS handshake, so they can
// be rotated on disk without a reload.
//
// # Failures
//
// Polls fail only for configuration problems ([ConfigError], such as an
// extractor that does not compile) and transport problems ([TransportError]:
// connection failures, timeouts and non-2xx responses). Content problems
// degrade instead: an undecodable body or an extractor that does not fit the
// response yields no records, and items without a string indicator are
// skipped.
//
// # Architecture
//
// feedminer consists of several internal packages (under internal/):
//
//   - internal/extract: JMESPath item extraction
//   - internal/credentials: Credentials snapshots and side config reloads
//   - internal/lifecycle: Side file locations, reload and teardown hooks
//   - internal/poller: Request building, record mapping and the polling scheduler
//   - internal/store: In-memory record sets with pub/sub for changes
//   - internal/server: HTTP server with REST API and Server-Sent Events
//   - internal/metrics: Prometheus metrics
//
// The internal packages are not part of the public API and may change
// without notice.
package feedminer
