// Package eventstore durably persists the protocol's event log in
// goleveldb, keyed by a monotonically increasing big-endian sequence
// number so iteration order matches append order. This is the protocol's
// only persisted artifact: every other piece of state is
// reconstructed from it at startup via event.Replay. Grounded on nhbchain's
// use of goleveldb as its block/account storage backend, adapted here to a
// single sequential append-only keyspace instead of a trie.
package eventstore

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"talvault/event"
)

// Store is a durable, append-only, sequentially-keyed event log.
type Store struct {
	mu      sync.Mutex
	db      *leveldb.DB
	nextSeq uint64
}

// Open opens (or creates) the goleveldb database at dir and primes the
// in-memory sequence counter from its contents.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open %s: %w", dir, err)
	}
	s := &Store{db: db}
	if err := s.loadNextSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) loadNextSeq() error {
	iter := s.db.NewIterator(&util.Range{}, nil)
	defer iter.Release()

	var max uint64
	found := false
	for iter.Next() {
		seq := binary.BigEndian.Uint64(iter.Key())
		found = true
		if seq >= max {
			max = seq
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("eventstore: scan: %w", err)
	}
	if found {
		s.nextSeq = max + 1
	}
	return nil
}

func seqToKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Append encodes and durably writes one event, returning its assigned
// sequence number. Matches event.Appender.
func (s *Store) Append(kind event.Kind, payload interface{}) (uint64, error) {
	raw, err := event.Encode(kind, payload)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq
	if err := s.db.Put(seqToKey(seq), raw, nil); err != nil {
		return 0, fmt.Errorf("eventstore: append seq %d: %w", seq, err)
	}
	s.nextSeq++
	return seq, nil
}

// Len reports how many entries have been appended.
func (s *Store) Len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}

// ReadAll loads every entry in append order, ready for event.Replay.
func (s *Store) ReadAll() ([]event.RawEntry, error) {
	return s.ReadRange(0, 0)
}

// ReadRange loads up to length entries starting at start (0-based
// sequence number). length == 0 means "to the end" — used by ReadAll and
// bounded by the RPC layer's get_events cap (2000).
func (s *Store) ReadRange(start uint64, length uint64) ([]event.RawEntry, error) {
	s.mu.Lock()
	total := s.nextSeq
	s.mu.Unlock()

	if start >= total {
		return nil, nil
	}
	end := total
	if length > 0 && start+length < end {
		end = start + length
	}

	entries := make([]event.RawEntry, 0, end-start)
	r := &util.Range{Start: seqToKey(start), Limit: seqToKey(end)}
	iter := s.db.NewIterator(r, nil)
	defer iter.Release()

	for iter.Next() {
		kind, payload, err := event.DecodeEnvelope(iter.Value())
		if err != nil {
			return nil, err
		}
		// iter.Value() is only valid until the next iteration; copy the
		// payload bytes out before Decode's slice gets reused.
		payloadCopy := append([]byte(nil), payload...)
		entries = append(entries, event.RawEntry{Kind: kind, Payload: payloadCopy})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("eventstore: read range: %w", err)
	}
	return entries, nil
}
