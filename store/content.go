package store

import (
	"database/sql"

	"github.com/sirupsen/logrus"
	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
)

// ContentStore is the file-content half of the delta-chain engine
// (spec.md §4.1), backed by the files/file_deltas tables.
type ContentStore struct {
	logger *logrus.Logger
	chain  *chainStore
	cfg    Config

	vcache *LRUCache[hash.Hash, []byte]

	delayed      map[hash.FileId][]byte
	delayedBytes uint64
}

// NewContentStore wraps db's files/file_deltas tables. DeltaDirection is
// made database-wide here (spec.md §4.1): the first caller to configure a
// fresh database stamps its choice into db_vars, and every later open —
// regardless of that process's own YAML config — defers to the stamped
// value, so two processes opening the same file never silently disagree.
func NewContentStore(db *sql.DB, logger *logrus.Logger, cfg Config) *ContentStore {
	cfg.DeltaDirection = resolveDeltaDirection(db, logger, cfg.DeltaDirection)
	return &ContentStore{
		logger:  logger,
		chain:   newChainStore(db, "files", "file_deltas"),
		cfg:     cfg,
		vcache:  NewLRUCache[hash.Hash, []byte](cfg.VCacheMaxBytes, func(b []byte) uint64 { return uint64(len(b)) }),
		delayed: map[hash.FileId][]byte{},
	}
}

// resolveDeltaDirection returns the database-wide delta-direction,
// stamping want as the new database-wide value the first time a
// database has none recorded yet, and otherwise deferring to whatever
// value is already persisted.
func resolveDeltaDirection(db *sql.DB, logger *logrus.Logger, want DeltaDirection) DeltaDirection {
	stamped, err := ReadDeltaDirection(db)
	if err != nil {
		logger.Warnf("store: error reading delta_direction db_var: %v", err)
		stamped = ""
	}
	if stamped != "" {
		if want != "" && want != stamped {
			logger.Warnf("store: configured delta-direction %q overridden by database-wide %q", want, stamped)
		}
		return stamped
	}
	if want == "" {
		want = DeltaReverse
	}
	if err := WriteDeltaDirection(db, want); err != nil {
		logger.Warnf("store: error stamping delta_direction db_var: %v", err)
	}
	return want
}

// Exists reports whether id is present (as a base or reachable delta).
// Writes still held in the delayed-write buffer are not counted until
// they are flushed.
func (s *ContentStore) Exists(id hash.FileId) (bool, error) {
	if _, ok := s.vcache.Get(id.Hash); ok {
		return true, nil
	}
	return s.chain.exists(id.String())
}

// Get materializes id's bytes, consulting vcache and the delayed-write
// buffer first.
func (s *ContentStore) Get(id hash.FileId) ([]byte, error) {
	if data, ok := s.delayed[id]; ok {
		return data, nil
	}
	if data, ok := s.vcache.Get(id.Hash); ok {
		return data, nil
	}
	data, err := s.chain.get(id.String())
	if err != nil {
		return nil, err
	}
	s.vcache.Put(id.Hash, data)
	return data, nil
}

// PutFull inserts a full base version, idempotently.
func (s *ContentStore) PutFull(id hash.FileId, data []byte) error {
	if got := hash.FileIdOf(data); got != id {
		return coreerr.New(coreerr.Invalid, "store: content does not hash to %s (got %s)", id, got)
	}
	if err := s.chain.putFull(id.String(), data); err != nil {
		return err
	}
	s.vcache.Put(id.Hash, data)
	return nil
}

// PutDelta records idNew as reconstructible from idBase via delta.
func (s *ContentStore) PutDelta(idNew, idBase hash.FileId, delta Delta) error {
	return s.chain.putDelta(idNew.String(), idBase.String(), delta)
}

// Drop removes id's base row.
func (s *ContentStore) Drop(id hash.FileId) error {
	s.vcache.evict(id.Hash)
	return s.chain.drop(id.String())
}

// PutFileVersion implements spec.md §4.1's put_file_version: computes
// the reverse delta and verifies it exactly reproduces oldBytes before
// committing, then records base/delta rows per the configured
// DeltaDirection.
func (s *ContentStore) PutFileVersion(old, new hash.FileId, oldBytes, newBytes []byte) error {
	forward := ComputeDelta(oldBytes, newBytes)
	reverse := forward.Invert()
	reconstructedOld, err := reverse.Apply(newBytes)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err, "store: apply reverse delta %s<-%s", old, new)
	}
	if string(reconstructedOld) != string(oldBytes) {
		return coreerr.New(coreerr.Internal, "store: reverse delta for %s<-%s does not reproduce old bytes exactly", old, new)
	}

	switch s.cfg.DeltaDirection {
	case DeltaForward:
		if err := s.PutFull(new, newBytes); err != nil {
			return err
		}
		return s.PutDelta(old, new, reverse)
	case DeltaBoth:
		if err := s.PutFull(new, newBytes); err != nil {
			return err
		}
		if err := s.PutDelta(old, new, reverse); err != nil {
			return err
		}
		return s.PutDelta(new, old, forward)
	case DeltaReverse, "":
		fallthrough
	default:
		if s.cfg.DeltaDirection != DeltaReverse && s.cfg.DeltaDirection != "" {
			s.logger.Warnf("store: unknown delta-direction %q, defaulting to reverse", s.cfg.DeltaDirection)
		}
		if err := s.PutFull(new, newBytes); err != nil {
			return err
		}
		if err := s.PutDelta(old, new, reverse); err != nil {
			return err
		}
		return s.Drop(old)
	}
}

// DelayPut buffers data for id in the delayed_files write-back set,
// flushed on transaction commit or once the accumulated byte threshold
// is exceeded (spec.md §4.1/§4.7).
func (s *ContentStore) DelayPut(id hash.FileId, data []byte) error {
	if _, already := s.delayed[id]; !already {
		s.delayedBytes += uint64(len(data))
	}
	s.delayed[id] = data
	if s.delayedBytes >= s.cfg.DelayedFilesMaxBytes {
		return s.FlushDelayed()
	}
	return nil
}

// FlushDelayed writes every buffered file as a full base version and
// clears the buffer.
func (s *ContentStore) FlushDelayed() error {
	for id, data := range s.delayed {
		if err := s.PutFull(id, data); err != nil {
			return err
		}
	}
	s.delayed = map[hash.FileId][]byte{}
	s.delayedBytes = 0
	return nil
}

// DiscardDelayed drops the buffered writes without persisting them — the
// transaction-rollback path.
func (s *ContentStore) DiscardDelayed() {
	s.delayed = map[hash.FileId][]byte{}
	s.delayedBytes = 0
}
