package protocolstate

// OracleStalenessWindowNanos is the maximum age of the last BTC quote
// before mutating calls must reject with TemporarilyUnavailable:
// "now - last_btc_timestamp > 10 minutes".
const OracleStalenessWindowNanos = uint64(10) * 60 * 1_000_000_000

// IsOracleFresh reports whether a quote has ever arrived and, if so,
// whether it is within the staleness window as of nowNanos.
func (s *State) IsOracleFresh(nowNanos uint64) bool {
	if s.LastBtcRate == nil || s.LastBtcTimestamp == nil {
		return false
	}
	if nowNanos < *s.LastBtcTimestamp {
		return true
	}
	return nowNanos-*s.LastBtcTimestamp <= OracleStalenessWindowNanos
}
