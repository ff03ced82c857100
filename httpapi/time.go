package httpapi

import "time"

// timestampAtOrAfter reports whether a log line's RFC3339 timestamp (slog's
// default encoding) falls at or after sinceNanos, a Unix-nanosecond cutoff.
// Unparseable timestamps are never filtered out, since a malformed
// timestamp is a formatting bug, not grounds for hiding the line.
func timestampAtOrAfter(rfc3339 string, sinceNanos uint64) bool {
	t, err := time.Parse(time.RFC3339Nano, rfc3339)
	if err != nil {
		return true
	}
	return uint64(t.UnixNano()) >= sinceNanos
}
