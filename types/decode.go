package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DecodeRows decodes a JSON array of flat objects into rows, recording
// columns in first-seen key order. Scalars are stringified, null becomes "",
// nested objects and arrays are kept as compact JSON text.
func DecodeRows(data []byte) ([]string, Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, invalidRows(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, nil, NewError(ErrCodeInvalidRequest, "data must be an array of rows")
	}

	var (
		columns []string
		seen    = make(map[string]struct{})
		rows    Dataset
	)
	for dec.More() {
		row, order, err := decodeRow(dec)
		if err != nil {
			return nil, nil, invalidRows(fmt.Errorf("row %d: %w", len(rows), err))
		}
		for _, k := range order {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
		rows = append(rows, row)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, invalidRows(err)
	}
	return columns, rows, nil
}

func decodeRow(dec *json.Decoder) (Row, []string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	row := make(Row)
	var order []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		val, err := cellValue(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("column %q: %w", key, err)
		}
		if _, dup := row[key]; !dup {
			order = append(order, key)
		}
		row[key] = val
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return row, order, nil
}

func cellValue(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}
	switch trimmed[0] {
	case 'n':
		return "", nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

func invalidRows(err error) *Error {
	return NewError(ErrCodeInvalidRequest, "data must be an array of flat objects").WithCause(err)
}
