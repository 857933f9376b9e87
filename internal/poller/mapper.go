package poller

import (
	"fmt"
	"log/slog"

	"github.com/mitchellh/copystructure"
)

// Defaults for the record mapping of a node.
const (
	DefaultIndicator = "indicator"
	DefaultPrefix    = "json"
)

// Record is one normalized query result: the indicator value and the
// attributes projected from the rest of the item.
type Record struct {
	Indicator  string         `json:"indicator"`
	Attributes map[string]any `json:"attributes"`
}

// Mapper projects extracted items into records.
//
// Map never fails: an item without a usable indicator produces no record.
type Mapper struct {
	indicator string
	prefix    string
	fields    []string
	logger    *slog.Logger
}

// NewMapper creates a Mapper that keys records by the indicator field and
// prefixes attribute names with prefix + "_".
//
// fields is a whitelist of attribute fields. A nil fields projects every
// field of an item except the indicator; an empty non-nil fields projects
// none.
func NewMapper(indicator, prefix string, fields []string, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	var whitelist []string
	if fields != nil {
		whitelist = append(make([]string, 0, len(fields)), fields...)
	}
	return &Mapper{
		indicator: indicator,
		prefix:    prefix,
		fields:    whitelist,
		logger:    logger,
	}
}

// Map converts item into a Record. It reports false, and produces no record,
// when item is not an object, lacks the indicator field, or holds a
// non-string indicator. Only the last case is logged as an error since it
// usually means the indicator field is misconfigured.
func (m *Mapper) Map(item any) (Record, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		m.logger.Debug("skipping item that is not an object", "type", fmt.Sprintf("%T", item))
		return Record{}, false
	}

	raw, ok := obj[m.indicator]
	if !ok {
		m.logger.Debug("indicator not in item", "indicator", m.indicator)
		return Record{}, false
	}

	indicator, ok := raw.(string)
	if !ok {
		m.logger.Error("wrong indicator type",
			"indicator", m.indicator,
			"value", fmt.Sprintf("%v", raw),
			"type", fmt.Sprintf("%T", raw),
		)
		return Record{}, false
	}

	attributes := make(map[string]any)
	if m.fields != nil {
		for _, field := range m.fields {
			if value, ok := obj[field]; ok {
				attributes[m.attributeName(field)] = m.copyValue(value)
			}
		}
	} else {
		for field, value := range obj {
			if field == m.indicator {
				continue
			}
			attributes[m.attributeName(field)] = m.copyValue(value)
		}
	}

	return Record{Indicator: indicator, Attributes: attributes}, true
}

// MapAll maps every item, dropping those that produce no record.
func (m *Mapper) MapAll(items []any) []Record {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		if rec, ok := m.Map(item); ok {
			records = append(records, rec)
		}
	}
	return records
}

func (m *Mapper) attributeName(field string) string {
	return m.prefix + "_" + field
}

// copyValue deep-copies nested maps and slices so records never share
// structure with the decoded document.
func (m *Mapper) copyValue(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		c, err := copystructure.Copy(v)
		if err != nil {
			m.logger.Warn("failed to copy attribute value", "error", err.Error())
			return v
		}
		return c
	default:
		return v
	}
}
