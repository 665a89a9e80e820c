package certs

import (
	"crypto/ed25519"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/core/hash"
)

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func signCert(t *testing.T, priv ed25519.PrivateKey, keyId hash.KeyId, ident hash.RevisionId, name CertName, value CertValue) *Cert {
	t.Helper()
	c := &Cert{Ident: ident, Name: name, Value: value, Key: keyId}
	c.Sig = ed25519.Sign(priv, c.SignableBytes())
	return c
}

func TestPutCertIdempotent(t *testing.T) {
	s := New(newTestLogger())
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	keyId := hash.CertIdOf(pub).Hash
	s.PutKey(&KeyRecord{Id: hash.KeyId{Hash: keyId}, Data: pub})

	ident := hash.RevisionIdOf([]byte("rev1"))
	c := signCert(t, priv, hash.KeyId{Hash: keyId}, ident, "branch", "main")

	ok, err := s.PutCert(c)
	require.NoError(t, err)
	assert.True(t, ok)

	ok2, err := s.PutCert(c)
	require.NoError(t, err)
	assert.False(t, ok2)
	assert.Len(t, s.CertsFor(ident), 1)
}

func TestEraseBogusCertsDropsUntrusted(t *testing.T) {
	s := New(newTestLogger())
	pubGood, privGood, _ := ed25519.GenerateKey(nil)
	pubBad, privBad, _ := ed25519.GenerateKey(nil)
	goodKey := hash.KeyId{Hash: hash.Sum(pubGood)}
	badKey := hash.KeyId{Hash: hash.Sum(pubBad)}
	s.PutKey(&KeyRecord{Id: goodKey, Data: pubGood})
	s.PutKey(&KeyRecord{Id: badKey, Data: pubBad})

	ident := hash.RevisionIdOf([]byte("rev1"))
	goodCert := signCert(t, privGood, goodKey, ident, "branch", "main")
	badCert := signCert(t, privBad, badKey, ident, "branch", "main")
	// corrupt badCert's signature
	badCert.Sig[0] ^= 0xFF

	trustAnyGood := func(signers []hash.KeyId, ident hash.RevisionId, name CertName, value CertValue) bool {
		return len(signers) > 0
	}
	kept := s.EraseBogusCerts([]*Cert{goodCert, badCert}, trustAnyGood)
	require.Len(t, kept, 1)
	assert.Equal(t, goodKey, kept[0].Key)
}

func TestFixBadCerts(t *testing.T) {
	s := New(newTestLogger())
	pubGood, privGood, _ := ed25519.GenerateKey(nil)
	goodKey := hash.KeyId{Hash: hash.Sum(pubGood)}
	s.PutKey(&KeyRecord{Id: goodKey, Data: pubGood})

	ident := hash.RevisionIdOf([]byte("rev1"))
	good := signCert(t, privGood, goodKey, ident, "branch", "main")
	untrusted := signCert(t, privGood, goodKey, ident, "tag", "release")

	s.PutCert(good)
	s.PutCert(untrusted)

	trustOnlyBranch := func(signers []hash.KeyId, ident hash.RevisionId, name CertName, value CertValue) bool {
		return name == "branch"
	}
	removed := s.FixBadCerts(ident, trustOnlyBranch)
	assert.Equal(t, 1, removed)
	assert.Len(t, s.CertsFor(ident), 1)
}
