package store

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/roster"
)

// rosterEntry is the roster_cache payload: a roster and its parallel
// marking map, held together so a cache eviction can never write out
// one without the other.
type rosterEntry struct {
	roster  *roster.Roster
	marking *roster.MarkingMap
}

// RosterStore is the roster half of the delta-chain engine (spec.md
// §4.1), backed by the rosters/roster_deltas tables, fronted by the
// roster_cache write-back cache.
type RosterStore struct {
	logger *logrus.Logger
	chain  *chainStore
	cfg    Config
	cache  *LRUCache[hash.RevisionId, *rosterEntry]
}

// NewRosterStore wraps db's rosters/roster_deltas tables.
func NewRosterStore(db *sql.DB, logger *logrus.Logger, cfg Config) *RosterStore {
	s := &RosterStore{
		logger: logger,
		chain:  newChainStore(db, "rosters", "roster_deltas"),
		cfg:    cfg,
	}
	s.cache = NewLRUWritebackCache[hash.RevisionId, *rosterEntry](
		cfg.RosterCacheMaxEntries,
		func(*rosterEntry) uint64 { return 1 },
		s.writeout,
	)
	return s
}

func gzipCompress(text string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := io.WriteString(w, text); err != nil {
		panic(err) // writing to an in-memory buffer cannot fail
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func gzipDecompress(b []byte) (string, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return "", coreerr.Wrap(coreerr.Corrupt, err, "store: open gzip roster stream")
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", coreerr.Wrap(coreerr.Corrupt, err, "store: read gzip roster stream")
	}
	return string(out), nil
}

// Exists reports whether id's roster is present.
func (s *RosterStore) Exists(id hash.RevisionId) (bool, error) {
	if _, ok := s.cache.Get(id); ok {
		return true, nil
	}
	return s.chain.exists(id.String())
}

// Get returns the roster and marking map for id, consulting the
// roster_cache first.
func (s *RosterStore) Get(id hash.RevisionId) (*roster.Roster, *roster.MarkingMap, error) {
	if entry, ok := s.cache.Get(id); ok {
		return entry.roster, entry.marking, nil
	}
	compressed, err := s.chain.get(id.String())
	if err != nil {
		return nil, nil, err
	}
	text, err := gzipDecompress(compressed)
	if err != nil {
		return nil, nil, err
	}
	r, m, err := roster.ParseFull(text)
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.Corrupt, err, "store: parse roster %s", id)
	}
	s.cache.Put(id, &rosterEntry{roster: r, marking: m})
	return r, m, nil
}

// PutClean installs (r, m) under id as a clean cache entry without
// scheduling a write-back — used right after a fresh read or an
// already-persisted write.
func (s *RosterStore) PutClean(id hash.RevisionId, r *roster.Roster, m *roster.MarkingMap) {
	s.cache.Put(id, &rosterEntry{roster: r, marking: m})
}

// PutDirty installs (r, m) under id as dirty: it will be gzip-serialized
// and written out via Writeout before it can be evicted or on the next
// Flush (spec.md §4.1's writeout / §4.7's commit-time flush).
func (s *RosterStore) PutDirty(id hash.RevisionId, r *roster.Roster, m *roster.MarkingMap) {
	s.cache.PutDirty(id, &rosterEntry{roster: r, marking: m})
}

// writeout serializes, gzips, checksums and writes a new base row for a
// dirty roster_cache entry, satisfying spec.md §4.1's "Dirty roster
// entries are flushed via writeout(id, (roster, marking))".
func (s *RosterStore) writeout(id hash.RevisionId, entry *rosterEntry) error {
	manifestId := roster.ManifestIdOf(entry.roster)
	s.logger.Debugf("store: writeout roster %s (manifest %s)", id, manifestId)
	text := roster.SerializeFull(entry.roster, entry.marking)
	return s.chain.putFull(id.String(), gzipCompress(text))
}

// PutDelta records idNew's roster as reconstructible from idBase via a
// delta over the gzip-compressed canonical text.
func (s *RosterStore) PutDelta(idNew, idBase hash.RevisionId, delta Delta) error {
	return s.chain.putDelta(idNew.String(), idBase.String(), delta)
}

// Drop removes id's base row.
func (s *RosterStore) Drop(id hash.RevisionId) error {
	s.cache.evict(id)
	return s.chain.drop(id.String())
}

// Flush writes back every dirty roster_cache entry — the transaction
// commit path.
func (s *RosterStore) Flush() error {
	return s.cache.FlushAll()
}

// Discard drops every dirty roster_cache entry without persisting —
// the transaction rollback path.
func (s *RosterStore) Discard() {
	s.cache.DiscardAll()
}
