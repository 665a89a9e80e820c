// Package certs implements signed revision assertions (spec.md §3.6,
// §4.3): the Cert value type, an append-only CertStore with a public-key
// verifier cache, and the erase_bogus_certs trust filter. Grounded on the
// teacher's BlobFileMatcher (a small lookup-table-backed component keyed
// by an opaque id, logging duplicates via *logrus.Logger) generalized
// from git blob/file identity to cert/key identity.
//
// No third-party signature library appears in the retrieval pack in a
// form usable here (the chain libraries in AKJUS-bsc-erigon are
// curve-specific to that domain); per DESIGN.md this package is built on
// the standard library's crypto/ed25519, which is the natural verifier
// for a "detached signature over canonical bytes" scheme.
package certs

import (
	"crypto/ed25519"

	"github.com/sirupsen/logrus"
	"github.com/vcsforge/core/basicio"
	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
)

// CertName/CertValue are opaque strings; the store never interprets
// their semantics beyond equality and signable-text concatenation.
type CertName string
type CertValue string

// Cert is a signed name/value assertion about a revision (spec.md §3.6).
type Cert struct {
	Ident hash.RevisionId
	Name  CertName
	Value CertValue
	Key   hash.KeyId
	Sig   []byte
}

// SignableBytes is the deterministic concatenation ident||name||value
// (spec.md §6.2).
func (c *Cert) SignableBytes() []byte {
	return []byte(basicio.RenderToString(func(w *basicio.Writer) {
		w.FieldHex("ident", c.Ident.Hash[:])
		w.Field("name", string(c.Name))
		w.Field("value", string(c.Value))
	}))
}

// Id is the CertId: the hash of the signable text, the store's primary key.
func (c *Cert) Id() hash.CertId {
	return hash.CertIdOf(c.SignableBytes())
}

// Verify reports whether Sig is a valid ed25519 signature over
// SignableBytes() under pub.
func (c *Cert) Verify(pub ed25519.PublicKey) bool {
	return ed25519.Verify(pub, c.SignableBytes(), c.Sig)
}

// KeyRecord is a stored public key: name plus raw key material
// (public_keys(id, name, data) in the logical schema, §6.1).
type KeyRecord struct {
	Id   hash.KeyId
	Name string
	Data ed25519.PublicKey
}

// VerifierCacheEntry holds a Verifier/PublicKey pair jointly, per
// spec.md §4.3, so a verifier can never outlive the key it was built
// from.
type VerifierCacheEntry struct {
	Key    hash.KeyId
	Public ed25519.PublicKey
}

// Store is the append-only CertStore plus its supporting indices.
type Store struct {
	logger     *logrus.Logger
	certs      map[hash.CertId]*Cert
	byIdent    map[hash.RevisionId][]hash.CertId
	keys       map[hash.KeyId]*KeyRecord
	verifiers  map[hash.KeyId]*VerifierCacheEntry
}

// New creates an empty cert store.
func New(logger *logrus.Logger) *Store {
	return &Store{
		logger:    logger,
		certs:     map[hash.CertId]*Cert{},
		byIdent:   map[hash.RevisionId][]hash.CertId{},
		keys:      map[hash.KeyId]*KeyRecord{},
		verifiers: map[hash.KeyId]*VerifierCacheEntry{},
	}
}

// PutKey registers a public key for later verification.
func (s *Store) PutKey(k *KeyRecord) {
	s.keys[k.Id] = k
}

// verifierFor lazily populates the verifier cache for key, the "read-mostly,
// populated lazily" cache spec.md §5 describes.
func (s *Store) verifierFor(key hash.KeyId) (*VerifierCacheEntry, bool) {
	if v, ok := s.verifiers[key]; ok {
		return v, true
	}
	rec, ok := s.keys[key]
	if !ok {
		return nil, false
	}
	v := &VerifierCacheEntry{Key: key, Public: rec.Data}
	s.verifiers[key] = v
	return v, true
}

// PutCert inserts cert if its CertId is not already present. Returns
// false (no-op) on a duplicate, matching spec.md §4.3.
func (s *Store) PutCert(cert *Cert) (bool, error) {
	id := cert.Id()
	if _, dup := s.certs[id]; dup {
		return false, nil
	}
	s.certs[id] = cert
	s.byIdent[cert.Ident] = append(s.byIdent[cert.Ident], id)
	return true, nil
}

// CertsFor returns all certs attached to ident.
func (s *Store) CertsFor(ident hash.RevisionId) []*Cert {
	out := make([]*Cert, 0, len(s.byIdent[ident]))
	for _, id := range s.byIdent[ident] {
		out = append(out, s.certs[id])
	}
	return out
}

// Get returns the cert with the given CertId, or NotFound.
func (s *Store) Get(id hash.CertId) (*Cert, error) {
	c, ok := s.certs[id]
	if !ok {
		return nil, coreerr.New(coreerr.NotFound, "no such cert %s", id)
	}
	return c, nil
}

// erase physically removes a cert — only fix_bad_certs is permitted to
// call this (spec.md §3.8).
func (s *Store) erase(id hash.CertId) {
	c, ok := s.certs[id]
	if !ok {
		return
	}
	delete(s.certs, id)
	list := s.byIdent[c.Ident]
	for i, x := range list {
		if x == id {
			s.byIdent[c.Ident] = append(list[:i], list[i+1:]...)
			break
		}
	}
}
