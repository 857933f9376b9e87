package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/jpalmerr/feedminer/internal/credentials"
	"github.com/jpalmerr/feedminer/internal/extract"
	"github.com/jpalmerr/feedminer/internal/lifecycle"
)

// NodeInfo contains the configuration needed to poll a single node.
//
// This is the poller-internal representation of a node, decoupled from the
// main feedminer.Node type to avoid circular dependencies.
type NodeInfo struct {
	// Name uniquely identifies the node. It also names the node's side files.
	Name string

	// Query is the request configuration. Query.CertFile and Query.KeyFile
	// are taken from Files when empty.
	Query QueryConfig

	// Extractor is the JMESPath expression selecting items from the
	// response. Empty means "@".
	Extractor string

	// Indicator, Prefix and Fields configure the [Mapper].
	Indicator string
	Prefix    string
	Fields    []string

	// Username and Password are the credentials from the main configuration.
	// A complete side config overrides them.
	Username string
	Password string

	// Files holds the node's effective side file locations.
	Files lifecycle.Resolved

	// Interval is the custom polling interval for this node.
	// If 0, the scheduler's global interval is used.
	Interval time.Duration
}

// Outcome is the result of one [Poller.Poll].
type Outcome struct {
	Records    []Record
	StatusCode int
	Latency    time.Duration
	Err        error
}

// Poller runs the queries of a single node.
//
// A poll is synchronous and not guarded against concurrent use; the
// [Scheduler] never runs two polls of the same node at once. [Poller.Hup]
// and [Poller.Current] are safe to call while a poll is in flight.
type Poller struct {
	name      string
	interval  time.Duration
	query     QueryConfig
	expr      extract.Expression
	mapper    *Mapper
	creds     *credentials.Store
	lifecycle *lifecycle.Manager
	client    *Client
	logger    *slog.Logger
}

// NewPoller creates the Poller for info. The extractor is compiled here; a
// compile failure is reported by every poll rather than by NewPoller. The
// side config is read once immediately.
//
// If client is nil, a private [Client] is created. A nil logger uses
// slog.Default().
func NewPoller(info NodeInfo, client *Client, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = NewClient()
	}
	logger = logger.With("node", info.Name)

	query := info.Query
	if query.CertFile == "" {
		query.CertFile = info.Files.CertFile
	}
	if query.KeyFile == "" {
		query.KeyFile = info.Files.KeyFile
	}

	expr := extract.Compile(info.Extractor)
	if err := expr.Err(); err != nil {
		logger.Debug("extractor failed to compile", "extractor", expr.Source(), "error", err.Error())
	}

	creds := credentials.NewStore(
		credentials.New(info.Username, info.Password),
		info.Files.SideConfig,
		logger,
	)

	return &Poller{
		name:      info.Name,
		interval:  info.Interval,
		query:     query,
		expr:      expr,
		mapper:    NewMapper(info.Indicator, info.Prefix, info.Fields, logger),
		creds:     creds,
		lifecycle: lifecycle.NewManager(info.Name, info.Files, creds, logger),
		client:    client,
		logger:    logger,
	}
}

// Name returns the node name.
func (p *Poller) Name() string {
	return p.name
}

// URL returns the query URL.
func (p *Poller) URL() string {
	return p.query.URL
}

// Interval returns the node's polling interval, 0 for the scheduler default.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Files returns the node's effective side file locations.
func (p *Poller) Files() lifecycle.Resolved {
	return p.lifecycle.Files()
}

// Current returns the credentials the next poll will use.
func (p *Poller) Current() *credentials.Credentials {
	return p.creds.Current()
}

// Hup re-reads the credentials side config and reports whether the
// credentials were replaced. source optionally names the trigger.
func (p *Poller) Hup(source string) bool {
	return p.lifecycle.OnReload(source)
}

// Teardown removes the node's side files. It returns the removed paths.
func (p *Poller) Teardown() []string {
	return p.lifecycle.OnTeardown()
}

// BuildIterator runs one query and returns the records it produced.
//
// It fails with a *ConfigError if the extractor did not compile, and with a
// *TransportError if the query could not be completed or returned a non-2xx
// status. Problems in the response content never fail the poll: an
// undecodable body or an extractor that cannot traverse it yields no records,
// and unusable items are skipped.
func (p *Poller) BuildIterator(ctx context.Context, now time.Time) ([]Record, error) {
	out := p.Poll(ctx, now)
	return out.Records, out.Err
}

// Poll is [Poller.BuildIterator] with the response metadata included.
func (p *Poller) Poll(ctx context.Context, now time.Time) Outcome {
	if err := p.expr.Err(); err != nil {
		return Outcome{Err: &ConfigError{Node: p.name, Err: err}}
	}

	req := BuildRequest(p.query, p.creds.Current())
	resp := p.client.Do(ctx, req)

	out := Outcome{StatusCode: resp.StatusCode, Latency: resp.Latency}

	if resp.Error != nil {
		p.logger.Debug("query failed", "url", req.URL, "auth", req.Auth.String(), "error", resp.Error.Error())
		out.Err = &TransportError{Node: p.name, URL: req.URL, StatusCode: 0, Err: resp.Error}
		return out
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Debug("query returned non-success status",
			"url", req.URL,
			"status_code", resp.StatusCode,
			"body", string(resp.Body),
		)
		out.Err = &TransportError{Node: p.name, URL: req.URL, StatusCode: resp.StatusCode, Body: resp.Body}
		return out
	}

	document, err := decodeDocument(resp.Body)
	if err != nil {
		p.logger.Error("failed to decode query response", "url", req.URL, "error", err.Error())
		out.Records = []Record{}
		return out
	}

	items, err := p.expr.Evaluate(document)
	if err != nil {
		p.logger.Warn("extractor could not be applied to response",
			"extractor", p.expr.Source(),
			"error", err.Error(),
		)
	}

	out.Records = p.mapper.MapAll(items)
	p.logger.Debug("poll complete",
		"items", len(items),
		"records", len(out.Records),
		"checked_at", now,
	)
	return out
}
