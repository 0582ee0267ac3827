package asset

import (
	"fmt"
	"time"
)

// Params are the free-form node parameters of a config. Numbers decoded from JSON arrive
// as float64 and from YAML as int, so the accessors accept both.
type Params map[string]any

func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// RequireString returns the string param key or an error naming it.
func (p Params) RequireString(key string) (string, error) {
	s := p.String(key)
	if s == "" {
		return "", fmt.Errorf("missing required param %q", key)
	}
	return s, nil
}

func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return def
	}
}

func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// Duration accepts a Go duration string ("1.5s") or a number of milliseconds.
func (p Params) Duration(key string, def time.Duration) (time.Duration, error) {
	switch v := p[key].(type) {
	case nil:
		return def, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("param %q: %w", key, err)
		}
		return d, nil
	case int, int64, float64:
		return time.Duration(p.Float(key, 0) * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("param %q: unsupported duration %T", key, v)
	}
}
