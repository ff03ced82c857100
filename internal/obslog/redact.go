package obslog

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in
// logs — here, a caller's decoded-but-not-yet-validated RPC arguments
// before they are known to be a legitimate principal.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":      {},
	"env":          {},
	"message":      {},
	"severity":     {},
	"timestamp":    {},
	"error":        {},
	"reason":       {},
	"component":    {},
	"vault_id":     {},
	"owner":        {},
	"caller":       {},
	"mode":         {},
	"rate":         {},
	"fee":          {},
	"amount":       {},
	"tal_amount":   {},
	"block_index":  {},
	"oracle.rate":  {},
	"oracle.mode":  {},
	"oracle.result": {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic
// redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys that are
// allowed to be emitted without redaction. Tests use this to ensure
// sensitive keys remain masked.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns a slog.Attr that redacts the supplied value unless the
// key is explicitly allowlisted. The original key casing is preserved for
// readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
