package poller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// maxExactInteger is the largest magnitude float64 holds every integer up to.
const maxExactInteger = 1 << 53

// decodeDocument decodes a query response into plain JSON values.
//
// Numbers become float64, as JMESPath comparisons expect, except integers
// beyond ±2^53 which become int64 so they survive into attributes exactly.
func decodeDocument(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var document any
	if err := dec.Decode(&document); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid character after top-level value")
	}
	return normalizeNumbers(document)
}

func normalizeNumbers(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, elem := range t {
			n, err := normalizeNumbers(elem)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case []any:
		for i, elem := range t {
			n, err := normalizeNumbers(elem)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	case json.Number:
		return toNumber(t)
	default:
		return v, nil
	}
}

func toNumber(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil && (i > maxExactInteger || i < -maxExactInteger) {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("number %s out of range: %w", n, err)
	}
	return f, nil
}
