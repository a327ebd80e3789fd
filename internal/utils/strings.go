package utils

import "strings"

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
// This function is used throughout the codebase to parse comma-separated
// tag and screenshot values stored in the database.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// JoinCSV is the inverse of ParseCSV: it joins values into the comma-separated
// form stored in the database, skipping empty entries.
func JoinCSV(values []string) string {
	var parts []string
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ",")
}
