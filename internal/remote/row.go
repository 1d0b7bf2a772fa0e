// ABOUTME: Generic remote row with tolerant column accessors
// ABOUTME: Normalizes the value shapes returned by sqlite, postgres and JSON decoders
package remote

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Row is one remote record keyed by column name
type Row map[string]any

// TimeLayout is the fixed-width UTC layout used for text timestamps so that
// lexical order matches chronological order
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var timeLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Columns returns the row's column names
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	return cols
}

// String returns a text column; missing or NULL yields ""
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an integer column
func (r Row) Int(col string) (int, error) {
	switch v := r[col].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		i, err := v.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(v)
	case []byte:
		return strconv.Atoi(string(v))
	case nil:
		return 0, fmt.Errorf("column %s is null", col)
	default:
		return 0, fmt.Errorf("column %s has type %T, want integer", col, v)
	}
}

// Time returns a timestamp column in UTC
func (r Row) Time(col string) (time.Time, error) {
	switch v := r[col].(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return ParseTime(v)
	case []byte:
		return ParseTime(string(v))
	case nil:
		return time.Time{}, fmt.Errorf("column %s is null", col)
	default:
		return time.Time{}, fmt.Errorf("column %s has type %T, want timestamp", col, v)
	}
}

// ParseTime accepts the timestamp spellings produced by the supported backends
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Attributes decodes a JSON object column into string attributes
func (r Row) Attributes(col string) (map[string]string, error) {
	out := make(map[string]string)
	var obj map[string]any
	switch v := r[col].(type) {
	case nil:
		return out, nil
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case map[string]any:
		obj = v
	case string:
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
	case []byte:
		if err := json.Unmarshal(v, &obj); err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
	default:
		return nil, fmt.Errorf("column %s has type %T, want object", col, v)
	}
	for k, val := range obj {
		switch s := val.(type) {
		case string:
			out[k] = s
		case nil:
		default:
			out[k] = fmt.Sprint(s)
		}
	}
	return out, nil
}
