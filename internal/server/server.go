package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jpalmerr/feedminer/internal/poller"
	"github.com/jpalmerr/feedminer/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// maxRequestBodySize bounds request bodies of the control endpoints.
	maxRequestBodySize = 64 << 10
)

// NodeController performs control operations on the running nodes.
type NodeController interface {
	// SaveSideConfig writes the credentials side config of node and reloads
	// it. It reports whether the node's credentials were replaced.
	SaveSideConfig(node, username, password string) (bool, error)

	// Hup sends a reload signal to node, or to every node if node is empty.
	// It returns the nodes whose credentials were replaced.
	Hup(node, source string) ([]string, error)
}

// sideConfigRequest is the body of PUT /api/nodes/{name}/side-config.
type sideConfigRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Server handles HTTP requests for the miner API.
//
// Server provides these endpoints:
//   - GET /healthz: Liveness check
//   - GET /api/nodes: Status of all nodes
//   - GET /api/records: Current records of all nodes, or of ?node=
//   - GET /api/sse: Server-Sent Events stream of record changes
//   - PUT /api/nodes/{name}/side-config: Replace a node's credentials
//   - POST /api/nodes/{name}/hup: Reload a node's side config
//   - POST /api/hup: Reload every node's side config
//   - GET /metrics: Prometheus metrics, when a metrics handler is set
//
// The control endpoints (side-config and hup) exist only when both a
// controller and a control token are set, and require the token as
// "Authorization: Bearer <token>".
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	port       int
	controller NodeController
	token      string
	metrics    http.Handler
	validate   *validator.Validate
	httpServer *http.Server
	logger     *slog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store implementation for record data
//   - port: TCP port to listen on
//   - controller: Node control operations (may be nil, disabling the control endpoints)
//   - controlToken: Bearer token required by the control endpoints (empty disables them)
//   - metrics: Handler for /metrics (may be nil)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, port int, controller NodeController, controlToken string, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:      st,
		port:       port,
		controller: controller,
		token:      controlToken,
		metrics:    metrics,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger,
	}
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/nodes", s.handleNodes)
	mux.HandleFunc("GET /api/records", s.handleRecords)
	mux.HandleFunc("GET /api/sse", s.handleSSE)

	if s.controller != nil && s.token != "" {
		mux.HandleFunc("PUT /api/nodes/{name}/side-config", s.requireToken(s.handleSideConfig))
		mux.HandleFunc("POST /api/nodes/{name}/hup", s.requireToken(s.handleHup))
		mux.HandleFunc("POST /api/hup", s.requireToken(s.handleHup))
	}

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the server listens on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNodes returns the status of all nodes as JSON.
func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Nodes())
}

// handleRecords returns current records keyed by node name. With ?node= it
// returns that node's records only.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("node"); name != "" {
		records, ok := s.store.Records(name)
		if !ok {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown node %q", name))
			return
		}
		s.writeJSON(w, http.StatusOK, records)
		return
	}

	all := make(map[string][]store.Record)
	for _, node := range s.store.Nodes() {
		if records, ok := s.store.Records(node.Name); ok {
			all[node.Name] = records
		}
	}
	s.writeJSON(w, http.StatusOK, all)
}

// requireToken rejects requests that do not carry the control token.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			s.logger.Warn("unauthorized control request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="feedminer"`)
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// handleSideConfig writes the credentials side config of a node and reloads it.
func (s *Server) handleSideConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req sideConfigRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	replaced, err := s.controller.SaveSideConfig(name, req.Username, req.Password)
	if err != nil {
		s.writeControlError(w, name, err)
		return
	}

	s.logger.Info("side config updated via api", "node", name, "replaced", replaced)
	s.writeJSON(w, http.StatusOK, map[string]any{"node": name, "replaced": replaced})
}

// handleHup reloads the side config of one node, or of all nodes.
func (s *Server) handleHup(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	replaced, err := s.controller.Hup(name, "api")
	if err != nil {
		s.writeControlError(w, name, err)
		return
	}
	if replaced == nil {
		replaced = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"replaced": replaced})
}

func (s *Server) writeControlError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, poller.ErrUnknownNode) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown node %q", name))
		return
	}
	s.logger.Error("node control failed", "node", name, "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleSSE streams record changes via Server-Sent Events.
//
// A new client first receives one change per node holding its full current
// record set as additions, then every change as it happens.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	// writeAndFlush writes SSE data with a deadline to prevent blocking forever.
	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe before taking the snapshot so no change is missed in between
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, node := range s.store.Nodes() {
		records, ok := s.store.Records(node.Name)
		if !ok {
			continue
		}
		data, err := json.Marshal(store.Change{Node: node.Name, Status: node, Added: records})
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case change, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(change)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
