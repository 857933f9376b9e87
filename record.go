package feedminer

import (
	"time"

	"github.com/mitchellh/copystructure"

	"github.com/jpalmerr/feedminer/internal/poller"
)

// Errors reported in [PollResult.Error]. Use errors.As to inspect them.
type (
	// ConfigError reports a node configuration that cannot be polled, such
	// as an extractor that does not compile.
	ConfigError = poller.ConfigError

	// TransportError reports a query that could not be completed or
	// returned a non-2xx status.
	TransportError = poller.TransportError
)

// ErrUnknownNode is returned by node control operations for names that are
// not configured.
var ErrUnknownNode = poller.ErrUnknownNode

// Record is one normalized query result.
type Record struct {
	// Indicator is the value of the node's indicator field.
	Indicator string `json:"indicator"`

	// Attributes are the projected item fields, named {prefix}_{field}.
	Attributes map[string]any `json:"attributes"`
}

// PollResult is the outcome of one poll of a node, as passed to callbacks
// registered with [WithRecordCallback].
type PollResult struct {
	// NodeName is the polled node.
	NodeName string

	// URL is the query URL.
	URL string

	// Records are the records produced by the poll. nil when Error is set.
	Records []Record

	// Latency is the duration of the query.
	Latency time.Duration

	// CheckedAt is when the poll was performed.
	CheckedAt time.Time

	// StatusCode is the HTTP status of the response, 0 if none was received.
	StatusCode int

	// Error is set when the poll failed. It is a *ConfigError or a
	// *TransportError.
	Error error

	// Added, Updated and Withdrawn describe how the node's record set moved
	// compared to the previous successful poll.
	Added     int
	Updated   int
	Withdrawn int
}

// toPublicRecords deep copies poller records so callbacks cannot mutate the
// stored attributes.
func toPublicRecords(records []poller.Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = Record{Indicator: r.Indicator, Attributes: copyAttributes(r.Attributes)}
	}
	return out
}

func copyAttributes(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	cp, err := copystructure.Copy(attrs)
	if err != nil {
		// attributes come from decoded JSON and always copy; fall back to a
		// shallow copy rather than sharing the map
		shallow := make(map[string]any, len(attrs))
		for k, v := range attrs {
			shallow[k] = v
		}
		return shallow
	}
	return cp.(map[string]any)
}
