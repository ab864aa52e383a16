package tasks

import (
	"fmt"
	"strconv"
)

// intArg reads a whole number argument. JSON arguments decode as float64,
// tasks built in code may carry ints and the CLI may pass strings.
func intArg(args map[string]interface{}, key string, fallback int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number, got %q", key, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s has unsupported type %T", key, raw)
	}
}
