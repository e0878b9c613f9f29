package pagination

import (
	"fmt"
	"strconv"
)

// Page size bounds shared by list endpoints
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ParseLimit parses a limit query parameter. An empty value yields 0, which
// Clamp turns into the default.
func ParseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}
	if limit < 0 {
		return 0, fmt.Errorf("invalid limit parameter: %d", limit)
	}
	return limit, nil
}

// Clamp applies defaultLimit to non-positive limits and caps at maxLimit
func Clamp(limit, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
