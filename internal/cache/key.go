package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Entity kinds. Keys are built as "<kind>" or "<kind>|k1=v1&k2=v2" so that a
// kind name is a prefix of every key derived from it.
const (
	KindMarkets   = "markets"
	KindOrderBook = "orderbook"
	KindOrders    = "orders"
	KindPositions = "positions"
	KindAccount   = "account"
	KindParties   = "parties"
)

// Key builds the canonical cache key for a kind plus filter. Filter entries
// are sorted by name and empty values dropped, so equivalent filters produce
// the same key regardless of construction order. Values are query-escaped so
// a value containing '&' or '=' cannot forge extra filter params.
func Key(kind string, filter map[string]string) string {
	names := make([]string, 0, len(filter))
	for name, value := range filter {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return kind
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('|')
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(filter[name]))
	}
	return b.String()
}

// MatchesPrefix reports whether key falls under prefix. A prefix matches the
// identical key, a bare kind matches every key of that kind, and a full key
// matches keys that extend its filter — but "marketId=M1" never matches
// "marketId=M10": the character after the prefix must be a key separator.
func MatchesPrefix(key, prefix string) bool {
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	if len(key) == len(prefix) {
		return true
	}
	return key[len(prefix)] == '|' || key[len(prefix)] == '&'
}
