package handlers

import (
	"strconv"
	"strings"
)

// ParseIntQuery parses an integer from a query string with a default value
func ParseIntQuery(value string, defaultValue int) (int, error) {
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, err
	}
	return parsed, nil
}

// ParseCommaSeparated parses a comma-separated string into a slice
func ParseCommaSeparated(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
