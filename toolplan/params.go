package toolplan

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StringParam returns params[name] as a string. Non-string scalars are
// formatted; absent or nil values yield the fallback.
func StringParam(params map[string]interface{}, name, fallback string) string {
	v, ok := params[name]
	if !ok || v == nil {
		return fallback
	}
	return Stringify(v)
}

// IntParam returns params[name] as an int, accepting JSON numbers and
// numeric strings.
func IntParam(params map[string]interface{}, name string, fallback int) (int, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return fallback, fmt.Errorf("parameter '%s' must be an integer: %w", name, err)
		}
		return i, nil
	default:
		return fallback, fmt.Errorf("parameter '%s' must be an integer, got %T", name, v)
	}
}

// StringsParam returns params[name] as a list of strings. A single string
// is split on commas.
func StringsParam(params map[string]interface{}, name string) []string {
	v, ok := params[name]
	if !ok || v == nil {
		return nil
	}
	var out []string
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []interface{}:
		for _, item := range list {
			out = append(out, Stringify(item))
		}
	default:
		for _, part := range strings.Split(Stringify(v), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Stringify renders an argument value as plain text. Strings are returned
// unchanged, whole floats lose their fraction, and composite values are
// JSON-encoded.
func Stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(data)
	}
}
