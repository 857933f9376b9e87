package feedminer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jpalmerr/feedminer/internal/credentials"
	"github.com/jpalmerr/feedminer/internal/lifecycle"
	"github.com/jpalmerr/feedminer/internal/metrics"
	"github.com/jpalmerr/feedminer/internal/poller"
	"github.com/jpalmerr/feedminer/internal/server"
	"github.com/jpalmerr/feedminer/internal/store"
)

const (
	defaultPollInterval   = 60 * time.Second
	defaultPort           = 8080
	defaultMaxConcurrency = 10
	defaultConfigDir      = "."
)

// Miner polls remote query APIs and keeps the latest record set of every
// node.
//
// Miner is created using [New] with functional options and started with
// [Miner.Start]. Its node control operations ([Miner.Hup],
// [Miner.SaveSideConfig], [Miner.Teardown]) may be used before, during and
// after Start.
//
// The typical lifecycle is:
//
//	m, err := feedminer.New(feedminer.WithNode(n))
//	if err != nil {
//	    slog.Error("failed to create miner", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	m.Start(ctx) // blocks until context cancelled
type Miner struct {
	nodes           []Node
	pollers         map[string]*poller.Poller
	pollInterval    time.Duration
	port            int
	configDir       string
	controlToken    string
	client          *poller.Client
	scheduler       *poller.Scheduler
	store           *store.MemoryStore
	metrics         *metrics.Recorder
	logger          *slog.Logger
	recordCallbacks []func(PollResult)

	startOnce sync.Once
}

// New creates a new [Miner] with the given options.
//
// At least one node must be configured via [WithNode] or [WithNodes], and
// node names must be unique. Every node's credentials side config is read
// once here.
func New(opts ...Option) (*Miner, error) {
	cfg := &minerConfig{
		pollInterval:   defaultPollInterval,
		port:           defaultPort,
		maxConcurrency: defaultMaxConcurrency,
		configDir:      defaultConfigDir,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.nodes) == 0 {
		return nil, errors.New("at least one node is required")
	}

	// node names key the scheduler, the store and the side files
	seen := make(map[string]bool, len(cfg.nodes))
	for _, n := range cfg.nodes {
		if seen[n.name] {
			return nil, fmt.Errorf("duplicate node name: %q", n.name)
		}
		seen[n.name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Miner{
		nodes:           cfg.nodes,
		pollers:         make(map[string]*poller.Poller, len(cfg.nodes)),
		pollInterval:    cfg.pollInterval,
		port:            cfg.port,
		configDir:       cfg.configDir,
		controlToken:    cfg.controlToken,
		client:          poller.NewClient(),
		store:           store.NewMemoryStore(),
		logger:          logger,
		recordCallbacks: cfg.recordCallbacks,
	}

	var observer poller.Observer
	if cfg.metrics {
		m.metrics = metrics.New()
		observer = m.metrics
	}

	layout := lifecycle.Layout{ConfigDir: cfg.configDir}
	sources := make([]poller.Source, 0, len(cfg.nodes))
	for _, n := range cfg.nodes {
		p := poller.NewPoller(n.toPollerInfo(layout), m.client, logger)
		m.pollers[n.name] = p
		m.store.Register(n.name, n.url)
		sources = append(sources, p)
	}

	m.scheduler = poller.NewScheduler(sources, cfg.pollInterval, cfg.maxConcurrency, observer, logger)
	return m, nil
}

// Start begins polling nodes and serving the API.
//
// Start is a blocking call that runs until the provided context is
// cancelled. All nodes are polled immediately, then at their interval.
// Start may only be called once.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start.
func (m *Miner) Start(ctx context.Context) error {
	started := false
	m.startOnce.Do(func() { started = true })
	if !started {
		return errors.New("miner already started")
	}

	m.logger.Info("feedminer starting", "node_count", len(m.nodes), "config_dir", m.configDir)
	m.logger.Info("polling configured", "interval", m.pollInterval.String())
	m.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d", m.port))

	if ctx.Err() != nil {
		return nil
	}

	m.scheduler.Start(ctx)

	// track the results consumer goroutine to ensure clean shutdown
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range m.scheduler.Results() {
			m.consume(result)
		}
	}()

	cleanup := func() {
		m.scheduler.Stop() // closes results channel
		wg.Wait()
		m.client.Close()
	}

	var metricsHandler http.Handler
	if m.metrics != nil {
		metricsHandler = m.metrics.Handler()
	}

	httpServer := server.NewServer(m.store, m.port, m, m.controlToken, metricsHandler, m.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	m.logger.Info("feedminer stopped")
	return nil
}

// consume stores one poll result and hands it to the callbacks.
func (m *Miner) consume(result poller.PollResult) {
	change := m.store.Apply(toStoreUpdate(result))

	logAttrs := []any{
		"node", result.NodeName,
		"records", len(result.Records),
		"added", len(change.Added),
		"updated", len(change.Updated),
		"withdrawn", len(change.Withdrawn),
		"latency_ms", result.Latency.Milliseconds(),
	}
	if result.Error != nil {
		m.logger.Warn("poll completed with error", append(logAttrs, "error", result.Error.Error())...)
	} else {
		m.logger.Debug("poll completed", logAttrs...)
	}

	for _, cb := range m.recordCallbacks {
		invokeCallbackSafe(cb, toPollResult(result, change), m.logger)
	}
}

// Poll runs one query of node name outside the schedule and returns its
// records. The store and callbacks are not involved.
func (m *Miner) Poll(ctx context.Context, name string) ([]Record, error) {
	p, ok := m.pollers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	records, err := p.BuildIterator(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	return toPublicRecords(records), nil
}

// Hup re-reads the credentials side config of node name, or of every node if
// name is empty. source optionally names the trigger, e.g. "signal" or
// "api". It returns the nodes whose credentials were replaced.
func (m *Miner) Hup(name, source string) ([]string, error) {
	return m.scheduler.Hup(name, source)
}

// SaveSideConfig writes the credentials side config of node name and reloads
// it. It reports whether the node's credentials were replaced.
func (m *Miner) SaveSideConfig(name, username, password string) (bool, error) {
	p, ok := m.pollers[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	if err := credentials.Save(p.Files().SideConfig, username, password); err != nil {
		return false, err
	}
	replaced, err := m.Hup(name, "api")
	if err != nil {
		return false, err
	}
	return len(replaced) > 0, nil
}

// Teardown removes the side files of node name and forgets its records. The
// node keeps being polled. It returns the removed paths.
func (m *Miner) Teardown(name string) ([]string, error) {
	p, ok := m.pollers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	removed := p.Teardown()
	m.store.Remove(name)
	m.store.Register(name, p.URL())
	m.metrics.Forget(name)
	return removed, nil
}

// Nodes returns a copy of the configured nodes.
func (m *Miner) Nodes() []Node {
	cp := make([]Node, len(m.nodes))
	copy(cp, m.nodes)
	return cp
}

// Records returns the current record set of node name. The boolean is false
// if the node is unknown.
func (m *Miner) Records(name string) ([]Record, bool) {
	records, ok := m.store.Records(name)
	if !ok {
		return nil, false
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = Record{Indicator: r.Indicator, Attributes: copyAttributes(r.Attributes)}
	}
	return out, true
}

// Port returns the configured HTTP port.
func (m *Miner) Port() int {
	return m.port
}

// PollInterval returns the global polling interval.
func (m *Miner) PollInterval() time.Duration {
	return m.pollInterval
}

// ConfigDir returns the directory holding the nodes' side files.
func (m *Miner) ConfigDir() string {
	return m.configDir
}

// GC removes the side files of node name, typically one that is no longer
// configured: its credentials side config and, when it used a client
// certificate, the certificate and key. opts locate the files the way they
// locate them for [NewNode]; options unrelated to files are ignored.
//
// Missing files are not an error and removal failures are only logged. It
// returns the removed paths, or an error if name or opts are invalid.
func GC(name, configDir string, logger *slog.Logger, opts ...NodeOption) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	cfg := &nodeConfig{headers: make(map[string]string)}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("node %q: %w", name, err)
		}
	}

	files := lifecycle.Files{
		SideConfig:         cfg.sideConfig,
		CertFile:           cfg.certFile,
		KeyFile:            cfg.keyFile,
		ClientCertRequired: cfg.clientCertRequired,
	}
	return lifecycle.Teardown(logger, name, lifecycle.Layout{ConfigDir: configDir}, files), nil
}

// toStoreUpdate converts a poller result to a store update.
func toStoreUpdate(pr poller.PollResult) store.Update {
	var errStr *string
	if pr.Error != nil {
		s := pr.Error.Error()
		errStr = &s
	}

	var records []store.Record
	if pr.Error == nil {
		records = make([]store.Record, len(pr.Records))
		for i, r := range pr.Records {
			records[i] = store.Record{Indicator: r.Indicator, Attributes: r.Attributes}
		}
	}

	return store.Update{
		Node:           pr.NodeName,
		URL:            pr.URL,
		Records:        records,
		StatusCode:     pr.StatusCode,
		ResponseTimeMs: pr.Latency.Milliseconds(),
		CheckedAt:      pr.CheckedAt,
		Error:          errStr,
	}
}

// toPollResult converts an internal poller result to the public type.
func toPollResult(pr poller.PollResult, change store.Change) PollResult {
	return PollResult{
		NodeName:   pr.NodeName,
		URL:        pr.URL,
		Records:    toPublicRecords(pr.Records),
		Latency:    pr.Latency,
		CheckedAt:  pr.CheckedAt,
		StatusCode: pr.StatusCode,
		Error:      pr.Error,
		Added:      len(change.Added),
		Updated:    len(change.Updated),
		Withdrawn:  len(change.Withdrawn),
	}
}

// invokeCallbackSafe calls a record callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(PollResult), result PollResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("record callback panicked",
				"panic", r,
				"node", result.NodeName,
			)
		}
	}()
	cb(result)
}
