package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownNode is returned when a node name is not known to the scheduler.
var ErrUnknownNode = errors.New("unknown node")

// Source is a node the [Scheduler] polls. *Poller implements it.
type Source interface {
	Name() string
	URL() string
	Interval() time.Duration
	Poll(ctx context.Context, now time.Time) Outcome
	Hup(source string) bool
}

// Observer receives poll and reload events, typically to record metrics.
type Observer interface {
	ObservePoll(node string, records int, latency time.Duration, err error, at time.Time)
	ObserveReload(node string, replaced bool)
}

// PollResult holds the outcome of polling a single node.
type PollResult struct {
	// NodeName is the name of the polled node.
	NodeName string

	// URL is the query URL that was polled.
	URL string

	// Records are the records produced by the poll. nil when Error is set.
	Records []Record

	// Latency is the time taken to complete the HTTP request.
	Latency time.Duration

	// CheckedAt is the timestamp when the poll was performed.
	CheckedAt time.Time

	// StatusCode is the HTTP status code returned by the query API.
	StatusCode int

	// Error contains any error that failed the poll.
	Error error
}

// Scheduler manages periodic polling of multiple nodes.
//
// Scheduler implements a worker pool pattern, polling nodes at their
// respective intervals with configurable concurrency. Results are emitted to
// a channel that can be consumed by the caller.
//
// The scheduler polls all nodes immediately on start, then uses a
// tick-and-check pattern where it ticks at the GCD of all node intervals
// and polls only nodes that are due. A tick waits for every poll it started,
// so a node never has more than one poll in flight.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	sources        []Source
	byName         map[string]Source
	interval       time.Duration // global default interval
	maxConcurrency int
	observer       Observer
	results        chan PollResult
	logger         *slog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	// per-node timing for tick-and-check pattern
	lastPolledAt map[string]time.Time
	baseInterval time.Duration
}

// NewScheduler creates a new polling [Scheduler].
//
// Parameters:
//   - sources: Nodes to poll
//   - interval: Default time between polls of a node
//   - maxConcurrency: Maximum number of concurrent queries
//   - observer: Receives poll and reload events; may be nil
//   - logger: Logger for scheduler events (panic recovery, etc.)
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop]. Results are available via [Scheduler.Results].
func NewScheduler(sources []Source, interval time.Duration, maxConcurrency int, observer Observer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	byName := make(map[string]Source, len(sources))
	for _, src := range sources {
		byName[src.Name()] = src
	}
	return &Scheduler{
		sources:        sources,
		byName:         byName,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		observer:       observer,
		results:        make(chan PollResult, len(sources)),
		logger:         logger,
	}
}

// Results returns a receive-only channel that emits [PollResult] values.
//
// The channel is closed when the scheduler stops. Consumers should read from
// this channel until it is closed to receive all poll results.
func (s *Scheduler) Results() <-chan PollResult {
	return s.results
}

// Hup forwards a reload signal to node name, or to every node if name is
// empty. source optionally names the trigger. It returns the names of the
// nodes whose credentials were replaced.
func (s *Scheduler) Hup(name, source string) ([]string, error) {
	targets := s.sources
	if name != "" {
		src, ok := s.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, name)
		}
		targets = []Source{src}
	}

	var replaced []string
	for _, src := range targets {
		ok := src.Hup(source)
		if s.observer != nil {
			s.observer.ObserveReload(src.Name(), ok)
		}
		if ok {
			replaced = append(replaced, src.Name())
		}
	}
	return replaced, nil
}

// calculateBaseInterval determines the tick interval for the scheduler.
// Uses the GCD of all node intervals to ensure timely polling.
func (s *Scheduler) calculateBaseInterval() time.Duration {
	if len(s.sources) == 0 {
		return s.interval
	}

	intervals := make([]time.Duration, 0, len(s.sources))
	for _, src := range s.sources {
		intervals = append(intervals, s.intervalOf(src))
	}

	result := intervals[0]
	for _, d := range intervals[1:] {
		result = gcdDuration(result, d)
	}

	// floor at 1 second to prevent CPU thrashing
	if result < time.Second {
		result = time.Second
	}

	return result
}

func (s *Scheduler) intervalOf(src Source) time.Duration {
	if d := src.Interval(); d > 0 {
		return d
	}
	return s.interval
}

// gcdDuration calculates the greatest common divisor of two durations.
func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start begins the polling loop in a background goroutine.
//
// Start is non-blocking and returns immediately. The scheduler will:
//  1. Poll all nodes immediately
//  2. Tick at the GCD of all node intervals
//  3. Poll only nodes that are due on each tick
//  4. Continue until [Scheduler.Stop] is called or the context is cancelled
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastPolledAt = make(map[string]time.Time, len(s.sources))
	s.baseInterval = s.calculateBaseInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pollCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.pollDueSources(pollCtx, true)

		ticker := time.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				s.pollDueSources(pollCtx, false)
			}
		}
	}()
}

// Stop halts the scheduler and waits for all goroutines to complete.
//
// Stop cancels the scheduler's context and blocks until:
//   - The polling loop exits
//   - All in-flight queries complete
//   - The results channel is closed
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// pollDueSources polls only nodes that are due based on their intervals.
// If immediate is true, polls all nodes regardless of timing.
//
// TIMING SEMANTIC: lastPolledAt is updated when a poll STARTS, not when it
// completes. Effective interval = configured interval + poll duration for
// slow nodes.
func (s *Scheduler) pollDueSources(ctx context.Context, immediate bool) {
	now := time.Now()
	due := make([]Source, 0, len(s.sources))

	s.mu.Lock()
	for _, src := range s.sources {
		if immediate {
			due = append(due, src)
			s.lastPolledAt[src.Name()] = now
			continue
		}

		lastPolled, exists := s.lastPolledAt[src.Name()]
		if !exists || now.Sub(lastPolled) >= s.intervalOf(src) {
			due = append(due, src)
			s.lastPolledAt[src.Name()] = now
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	s.pollSources(ctx, due)
}

// pollSources polls a subset of nodes concurrently, respecting maxConcurrency.
func (s *Scheduler) pollSources(ctx context.Context, sources []Source) {
	jobs := make(chan Source, len(sources))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				result := s.pollSource(ctx, src)
				select {
				case s.results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, src := range sources {
		select {
		case jobs <- src:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

// pollSource polls a single node and returns the result.
func (s *Scheduler) pollSource(ctx context.Context, src Source) PollResult {
	now := time.Now()
	out := s.safePoll(ctx, src, now)

	if out.Err != nil {
		s.logger.Warn("poll failed", "node", src.Name(), "error", out.Err.Error())
		out.Records = nil
	}
	if s.observer != nil {
		s.observer.ObservePoll(src.Name(), len(out.Records), out.Latency, out.Err, now)
	}

	return PollResult{
		NodeName:   src.Name(),
		URL:        src.URL(),
		Records:    out.Records,
		Latency:    out.Latency,
		CheckedAt:  now,
		StatusCode: out.StatusCode,
		Error:      out.Err,
	}
}

// safePoll calls Poll with panic recovery.
// If the poll panics, it logs the full stack trace with a correlation ID
// and returns a failed outcome with a user-friendly error containing the ID.
func (s *Scheduler) safePoll(ctx context.Context, src Source, now time.Time) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			// log full context server-side for debugging
			s.logger.Error("poll panic",
				"node", src.Name(),
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)

			out = Outcome{Err: fmt.Errorf("poll panic (correlation_id: %s)", correlationID)}
		}
	}()
	return src.Poll(ctx, now)
}
