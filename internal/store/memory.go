package store

import (
	"cmp"
	"reflect"
	"slices"
	"sync"
)

type nodeEntry struct {
	status  NodeStatus
	records map[string]Record
}

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore provides thread-safe storage with a publish-subscribe mechanism
// for real-time updates. Record sets are keyed by node name and, within a
// node, by indicator; when a poll returns the same indicator twice the last
// occurrence wins.
//
// Subscribers receive changes via buffered channels (buffer size 100).
// Changes are sent non-blocking; if a subscriber's buffer is full, the change
// is dropped for that subscriber to prevent blocking the entire system.
type MemoryStore struct {
	mu          sync.RWMutex
	nodes       map[string]*nodeEntry
	subscribers map[chan Change]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:       make(map[string]*nodeEntry),
		subscribers: make(map[chan Change]struct{}),
	}
}

// Register adds node in the pending state.
func (m *MemoryStore) Register(node, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.nodes[node]; ok {
		e.status.URL = url
		return
	}
	m.nodes[node] = &nodeEntry{
		status:  NodeStatus{Name: node, URL: url, State: StatePending},
		records: make(map[string]Record),
	}
}

// Apply stores u, diffs it against the previous record set and notifies all
// subscribers of the resulting [Change]. Unknown nodes are registered on the
// fly.
func (m *MemoryStore) Apply(u Update) Change {
	m.mu.Lock()
	e, ok := m.nodes[u.Node]
	if !ok {
		e = &nodeEntry{records: make(map[string]Record)}
		m.nodes[u.Node] = e
	}

	e.status.Name = u.Node
	if u.URL != "" {
		e.status.URL = u.URL
	}
	e.status.StatusCode = u.StatusCode
	e.status.ResponseTimeMs = u.ResponseTimeMs
	e.status.CheckedAt = u.CheckedAt
	e.status.Error = u.Error

	change := Change{Node: u.Node}
	if u.Error != nil {
		e.status.State = StateFailing
	} else {
		next := make(map[string]Record, len(u.Records))
		for _, r := range u.Records {
			next[r.Indicator] = r
		}
		change.Added, change.Updated, change.Withdrawn = diff(e.records, next)
		e.records = next

		checked := u.CheckedAt
		e.status.State = StateOK
		e.status.LastSuccessAt = &checked
	}
	e.status.RecordCount = len(e.records)
	change.Status = e.status
	m.mu.Unlock()

	m.notifySubscribers(change)
	return change
}

// Remove forgets node and publishes the withdrawal of all its records.
func (m *MemoryStore) Remove(node string) Change {
	m.mu.Lock()
	e, ok := m.nodes[node]
	if !ok {
		m.mu.Unlock()
		return Change{Node: node}
	}
	delete(m.nodes, node)
	m.mu.Unlock()

	change := Change{Node: node, Status: e.status}
	change.Status.RecordCount = 0
	_, _, change.Withdrawn = diff(e.records, nil)

	m.notifySubscribers(change)
	return change
}

// Nodes returns a snapshot of all node statuses sorted by name.
func (m *MemoryStore) Nodes() []NodeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]NodeStatus, 0, len(m.nodes))
	for _, e := range m.nodes {
		statuses = append(statuses, e.status)
	}
	slices.SortFunc(statuses, func(a, b NodeStatus) int { return cmp.Compare(a.Name, b.Name) })
	return statuses
}

// Records returns a snapshot of node's record set sorted by indicator.
func (m *MemoryStore) Records(node string) ([]Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.nodes[node]
	if !ok {
		return nil, false
	}
	return sortedRecords(e.records), true
}

// Subscribe creates a new subscription and returns a channel for receiving changes.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new changes are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Change {
	ch := make(chan Change, 100)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// changes will be sent. Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Change) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the change to all active subscribers.
//
// This is non-blocking: if a subscriber's channel buffer is full, the message
// is dropped for that subscriber rather than blocking the update path.
func (m *MemoryStore) notifySubscribers(change Change) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- change:
		default:
			// subscriber is slow, drop the message
		}
	}
}

// diff compares two record sets keyed by indicator. All results are sorted
// by indicator.
func diff(prev, next map[string]Record) (added, updated []Record, withdrawn []string) {
	for indicator, r := range next {
		old, ok := prev[indicator]
		switch {
		case !ok:
			added = append(added, r)
		case !reflect.DeepEqual(old.Attributes, r.Attributes):
			updated = append(updated, r)
		}
	}
	for indicator := range prev {
		if _, ok := next[indicator]; !ok {
			withdrawn = append(withdrawn, indicator)
		}
	}

	slices.SortFunc(added, byIndicator)
	slices.SortFunc(updated, byIndicator)
	slices.Sort(withdrawn)
	return added, updated, withdrawn
}

func sortedRecords(records map[string]Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	slices.SortFunc(out, byIndicator)
	return out
}

func byIndicator(a, b Record) int {
	return cmp.Compare(a.Indicator, b.Indicator)
}
