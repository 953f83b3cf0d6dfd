package storage

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goliatone/go-repository-query/schema"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// normalize converts a scanned driver value to the canonical Go type of the
// field: string, int64, float64, bool or time.Time. Drivers disagree here;
// sqlite for instance stores booleans as integers and may hand back times as
// text.
func normalize(t schema.FieldType, v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch t {
	case schema.String:
		switch x := v.(type) {
		case string:
			return x
		case time.Time:
			return x.UTC().Format(time.RFC3339Nano)
		default:
			return fmt.Sprint(x)
		}
	case schema.Int:
		switch x := v.(type) {
		case int64:
			return x
		case int:
			return int64(x)
		case int32:
			return int64(x)
		case float64:
			return int64(x)
		case string:
			if n, err := strconv.ParseInt(x, 10, 64); err == nil {
				return n
			}
		}
	case schema.Float:
		switch x := v.(type) {
		case float64:
			return x
		case float32:
			return float64(x)
		case int64:
			return float64(x)
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		}
	case schema.Bool:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		case int:
			return x != 0
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b
			}
		}
	case schema.Time:
		switch x := v.(type) {
		case time.Time:
			return x.UTC()
		case string:
			if parsed, err := parseTime(x); err == nil {
				return parsed
			}
		}
	}
	return v
}

// normalizeRow converts a scanned row keyed by public names to a Record.
func normalizeRow(es *schema.EntitySchema, row map[string]any) schema.Record {
	rec := make(schema.Record, len(row))
	for name, v := range row {
		if f, ok := es.Field(name); ok {
			rec[name] = normalize(f.Type, v)
			continue
		}
		rec[name] = v
	}
	return rec
}
