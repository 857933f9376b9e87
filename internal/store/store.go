package store

import "time"

// Node states reported in [NodeStatus].
const (
	StatePending = "pending"
	StateOK      = "ok"
	StateFailing = "failing"
)

// Record is the storage representation of one indicator and its attributes.
type Record struct {
	Indicator  string         `json:"indicator"`
	Attributes map[string]any `json:"attributes"`
}

// NodeStatus summarizes the polling state of one node, optimized for JSON
// serialization (used by the REST API and SSE).
type NodeStatus struct {
	// Name is the node name.
	Name string `json:"name"`

	// URL is the query URL.
	URL string `json:"url"`

	// State is one of StatePending, StateOK or StateFailing.
	State string `json:"state"`

	// RecordCount is the size of the current record set.
	RecordCount int `json:"record_count"`

	// StatusCode is the HTTP status of the last poll, 0 if none was received.
	StatusCode int `json:"status_code,omitempty"`

	// ResponseTimeMs is the latency of the last poll in milliseconds.
	ResponseTimeMs int64 `json:"response_time_ms"`

	// CheckedAt is the time of the last poll.
	CheckedAt time.Time `json:"checked_at"`

	// LastSuccessAt is the time of the last successful poll.
	LastSuccessAt *time.Time `json:"last_success_at"`

	// Error contains the error message if the last poll failed.
	Error *string `json:"error"`
}

// Update is the outcome of one poll as handed to [Store.Apply].
type Update struct {
	Node           string
	URL            string
	Records        []Record
	StatusCode     int
	ResponseTimeMs int64
	CheckedAt      time.Time

	// Error is set when the poll failed; Records is then ignored.
	Error *string
}

// Change describes how a node's record set moved after one poll. It is what
// subscribers receive.
type Change struct {
	Node   string     `json:"node"`
	Status NodeStatus `json:"status"`

	// Added holds records whose indicator was not present before.
	Added []Record `json:"added"`

	// Updated holds records whose indicator was present with different
	// attributes.
	Updated []Record `json:"updated"`

	// Withdrawn holds indicators that disappeared.
	Withdrawn []string `json:"withdrawn"`
}

// Empty reports whether the change moved no records.
func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Withdrawn) == 0
}

// Store defines the interface for storing record sets and subscribing to
// their changes.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Register adds a node in the pending state. Registering a known node
	// only updates its URL.
	Register(node, url string)

	// Apply stores a poll outcome, notifies all subscribers and returns the
	// resulting change. A failed update keeps the previous record set.
	Apply(u Update) Change

	// Remove forgets a node and returns its withdrawn indicators.
	Remove(node string) Change

	// Nodes returns the status of all known nodes, sorted by name.
	Nodes() []NodeStatus

	// Records returns the current record set of node, sorted by indicator.
	// The boolean is false if the node is unknown.
	Records(node string) ([]Record, bool)

	// Subscribe returns a channel that receives changes.
	// The returned channel has a buffer; slow consumers may miss changes.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Change

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Change)
}
