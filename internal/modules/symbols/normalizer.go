// Package symbols maps broker-supplied instrument strings and hashtag labels
// to their canonical forms. All functions are pure and never fail: an unknown
// symbol falls through to a best-effort cleaned string.
package symbols

import (
	"strings"
	"unicode"
)

// knownAssets is the canonical asset table. Broker feeds decorate these with
// suffixes ("EURUSD.a", "XAUUSD_m", "US30.cash"), so lookup is exact match
// first and longest-prefix match second.
var knownAssets = []string{
	// Majors
	"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD", "USDCAD", "NZDUSD",
	// Crosses
	"EURGBP", "EURJPY", "EURCHF", "EURAUD", "EURCAD", "EURNZD",
	"GBPJPY", "GBPCHF", "GBPAUD", "GBPCAD", "GBPNZD",
	"AUDJPY", "AUDCAD", "AUDCHF", "AUDNZD",
	"CADJPY", "CADCHF", "CHFJPY", "NZDJPY", "NZDCAD", "NZDCHF",
	// Metals and energy
	"XAUUSD", "XAGUSD", "XPTUSD", "XTIUSD", "XBRUSD", "XNGUSD",
	// Indices
	"US30", "US100", "US500", "NAS100", "SPX500", "GER40", "UK100", "JPN225", "AUS200",
	// Crypto
	"BTCUSD", "ETHUSD", "SOLUSD", "XRPUSD", "LTCUSD",
}

// knownAssetSet provides O(1) exact-match lookup.
var knownAssetSet = func() map[string]bool {
	m := make(map[string]bool, len(knownAssets))
	for _, a := range knownAssets {
		m[a] = true
	}
	return m
}()

// setupLabels is the fixed list of canonical setup tags a trade can carry.
// Matching is case-insensitive and re-applies the '#' marker.
var setupLabels = []string{
	"Breakout", "Reversal", "Continuation", "Pullback", "Range",
	"News", "Scalp", "Swing", "SL moved", "TP moved", "partial",
}

// NormalizeSymbol maps a raw broker symbol to its canonical asset code.
// Resolution order: exact match, longest-prefix match, then the same prefix
// match over the input stripped of non-alphanumerics. When nothing matches the
// cleaned string is returned unchanged - normalization is best-effort and
// never fails.
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	if knownAssetSet[s] {
		return s
	}

	if match := longestPrefixMatch(s); match != "" {
		return match
	}

	cleaned := stripNonAlphanumeric(s)
	if knownAssetSet[cleaned] {
		return cleaned
	}
	if match := longestPrefixMatch(cleaned); match != "" {
		return match
	}

	return cleaned
}

// longestPrefixMatch returns the longest known asset that is a prefix of s,
// or "" when none is.
func longestPrefixMatch(s string) string {
	best := ""
	for _, asset := range knownAssets {
		if strings.HasPrefix(s, asset) && len(asset) > len(best) {
			best = asset
		}
	}
	return best
}

func stripNonAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeTagLabel maps a raw hashtag-like label to its canonical casing.
// The leading '#' marker is stripped before matching and re-applied on a
// match. Returns "" for empty input and the trimmed input (marker preserved
// as given) when no canonical label matches.
func NormalizeTagLabel(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	hadMarker := strings.HasPrefix(s, "#")
	label := strings.TrimSpace(strings.TrimPrefix(s, "#"))
	if label == "" {
		return ""
	}

	for _, canonical := range setupLabels {
		if strings.EqualFold(label, canonical) {
			if hadMarker {
				return "#" + canonical
			}
			return canonical
		}
	}

	return s
}
