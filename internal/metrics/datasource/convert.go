package datasource

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Row values arrive in whatever shape the executor produced: native integers
// from the SQL driver, json.Number from the cache, or array text from the
// PostgreSQL wire interface.

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
	case nil:
		return 0, fmt.Errorf("nil value")
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}

func toInt64Slice(v interface{}) ([]int64, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []int64:
		return s, nil
	case []uint64:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out, nil
	case []interface{}:
		out := make([]int64, 0, len(s))
		for _, item := range s {
			n, err := toInt64(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case []byte:
		return parseArrayText(string(s))
	case string:
		return parseArrayText(s)
	default:
		// a scalar tag id, e.g. when grouping by an array join
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return []int64{n}, nil
	}
}

// parseArrayText parses "[1,2]" and "{1,2}" array literals
func parseArrayText(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || !((s[0] == '[' && s[len(s)-1] == ']') || (s[0] == '{' && s[len(s)-1] == '}')) {
		return nil, fmt.Errorf("invalid array literal %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []int64{}, nil
	}

	parts := strings.Split(body, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid array element %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// aggregateValue unwraps the single-element arrays quantile aggregates
// return and turns json.Number back into a Go number
func aggregateValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		if len(val) == 1 {
			return aggregateValue(val[0])
		}
		return val
	case []float64:
		if len(val) == 1 {
			return val[0]
		}
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}
