package normalize

import (
	"encoding/json"
	"math"
	"time"
)

func stringField(m map[string]any, key string) string {
	value, _ := m[key].(string)
	return value
}

// refField reads an expandable reference: either an id string or an
// expanded object carrying its own id.
func refField(m map[string]any, key string) string {
	switch value := m[key].(type) {
	case string:
		return value
	case map[string]any:
		return stringField(value, "id")
	default:
		return ""
	}
}

func objectField(m map[string]any, key string) map[string]any {
	value, _ := m[key].(map[string]any)
	return value
}

func intField(m map[string]any, key string) (int64, bool) {
	number, ok := m[key].(json.Number)
	if !ok {
		return 0, false
	}
	if v, err := number.Int64(); err == nil {
		return v, true
	}
	f, err := number.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func boolField(m map[string]any, key string) bool {
	value, _ := m[key].(bool)
	return value
}

// unixField converts unix seconds to UTC time. Missing or zero values are nil
// so absent timestamps never become the epoch.
func unixField(m map[string]any, key string) *time.Time {
	seconds, ok := intField(m, key)
	if !ok || seconds == 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}

// firstItemPrice returns items.data[0].price of a subscription object.
func firstItemPrice(sub map[string]any) map[string]any {
	items := objectField(sub, "items")
	data, _ := items["data"].([]any)
	if len(data) == 0 {
		return nil
	}
	item, _ := data[0].(map[string]any)
	return objectField(item, "price")
}

// firstString returns the first non-empty value; empty strings fall through
// to the next source.
func firstString(values ...string) *string {
	for _, v := range values {
		if v != "" {
			return &v
		}
	}
	return nil
}

type intSource struct {
	value int64
	ok    bool
}

func intFrom(m map[string]any, key string) intSource {
	v, ok := intField(m, key)
	return intSource{value: v, ok: ok}
}

// firstAmount returns the first present non-zero amount.
func firstAmount(sources ...intSource) *int64 {
	for _, s := range sources {
		if s.ok && s.value != 0 {
			v := s.value
			return &v
		}
	}
	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
