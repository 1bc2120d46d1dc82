package rules

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"
)

// Match reports whether evt satisfies every condition at now. A non-nil
// error means a threshold field was missing or not numeric; the result is
// then false.
func (c Conditions) Match(evt Event, now time.Time) (bool, error) {
	if len(c.Channels) > 0 && !slices.Contains(c.Channels, evt.Channel) {
		return false, nil
	}
	if c.Window > 0 && now.Sub(evt.Timestamp) > c.Window {
		return false, nil
	}

	dir := c.Direction
	if dir == DirectionAuto {
		dir = evt.Kind.defaultDirection()
	}

	// sorted so the reported field is stable
	fields := make([]string, 0, len(c.Thresholds))
	for f := range c.Thresholds {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		raw, ok := evt.Data[field]
		if !ok {
			return false, fmt.Errorf("field %q missing", field)
		}
		v, ok := toFloat(raw)
		if !ok {
			return false, fmt.Errorf("field %q is not numeric (%T)", field, raw)
		}
		limit := c.Thresholds[field]
		switch dir {
		case DirectionBelow:
			if v >= limit {
				return false, nil
			}
		default:
			if v < limit {
				return false, nil
			}
		}
	}
	return true, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
