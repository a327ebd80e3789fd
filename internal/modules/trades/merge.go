package trades

import "strings"

// The merge policy for event-driven updates: a field that already holds a
// reported value is preserved and the incoming value only fills gaps. Events
// can arrive in any order, so a late ORDER_PLACED must not clobber the values
// an earlier TRADE_OPENED already wrote. Fields an event type is authoritative
// for bypass this policy and are assigned directly by the reconciler.
//
// Absence is nil, not zero: a reported stop loss of 0 is a legitimate value
// and is preserved like any other.

// MergeFloat returns current when it is set, otherwise incoming.
func MergeFloat(current, incoming *float64) *float64 {
	if current != nil {
		return current
	}
	return incoming
}

// MergeString returns current when it is non-empty, otherwise incoming.
func MergeString(current, incoming string) string {
	if current != "" {
		return current
	}
	return incoming
}

// MergeTags unions incoming tags into current, case-insensitively, preserving
// first-seen casing and never dropping existing tags.
func MergeTags(current, incoming []string) []string {
	merged := make([]string, 0, len(current)+len(incoming))
	seen := make(map[string]bool, len(current)+len(incoming))

	for _, tag := range current {
		key := strings.ToLower(strings.TrimSpace(tag))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, tag)
	}

	for _, tag := range incoming {
		key := strings.ToLower(strings.TrimSpace(tag))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, tag)
	}

	if len(merged) == 0 {
		return nil
	}

	return merged
}
