package event

// Appender is implemented by eventstore.Store; kept here so packages that
// only need to append events (vault, liquiditypool, liquidation, oracle)
// don't import goleveldb directly.
type Appender interface {
	Append(kind Kind, payload interface{}) (seq uint64, err error)
}
