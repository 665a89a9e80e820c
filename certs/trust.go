package certs

import (
	"github.com/vcsforge/core/hash"
)

// TrustFn is the higher-layer callback supplied by the caller: given the
// set of signers whose signature verified, decide whether the group is
// trusted (spec.md §4.3).
type TrustFn func(signers []hash.KeyId, ident hash.RevisionId, name CertName, value CertValue) bool

// group is the (ident, name, value) bucket erase_bogus_certs reasons about.
type group struct {
	ident hash.RevisionId
	name  CertName
	value CertValue
	certs []*Cert
}

func groupKey(c *Cert) [3]string {
	return [3]string{c.Ident.String(), string(c.Name), string(c.Value)}
}

// EraseBogusCerts implements spec.md §4.3: group candidate certs by
// (ident, name, value); split signatures into good/bad/unknown by
// verifying with the stored public key for KeyId; if the good set
// satisfies trustFn keep one representative, otherwise drop the whole
// group and emit a diagnostic per bad/unknown signer.
func (s *Store) EraseBogusCerts(candidates []*Cert, trustFn TrustFn) []*Cert {
	groups := map[[3]string]*group{}
	order := make([][3]string, 0)
	for _, c := range candidates {
		k := groupKey(c)
		g, ok := groups[k]
		if !ok {
			g = &group{ident: c.Ident, name: c.Name, value: c.Value}
			groups[k] = g
			order = append(order, k)
		}
		g.certs = append(g.certs, c)
	}

	kept := make([]*Cert, 0, len(candidates))
	for _, k := range order {
		g := groups[k]
		var good []*Cert
		var goodSigners []hash.KeyId
		for _, c := range g.certs {
			entry, known := s.verifierFor(c.Key)
			if !known {
				s.logger.Errorf("unknown key for cert ident=%s name=%s key=%s", c.Ident, c.Name, c.Key)
				continue
			}
			if !c.Verify(entry.Public) {
				s.logger.Errorf("bad signature for cert ident=%s name=%s key=%s", c.Ident, c.Name, c.Key)
				continue
			}
			good = append(good, c)
			goodSigners = append(goodSigners, c.Key)
		}
		if len(good) > 0 && trustFn(goodSigners, g.ident, g.name, g.value) {
			kept = append(kept, good[0])
		} else {
			s.logger.Debugf("dropping untrusted cert group ident=%s name=%s (good=%d of %d)",
				g.ident, g.name, len(good), len(g.certs))
		}
	}
	return kept
}

// FixBadCerts is the maintenance operation permitted to physically
// delete certs (spec.md §3.8): re-runs the trust filter over every cert
// on ident and erases the ones that did not survive.
func (s *Store) FixBadCerts(ident hash.RevisionId, trustFn TrustFn) int {
	all := s.CertsFor(ident)
	kept := s.EraseBogusCerts(all, trustFn)
	keptIds := map[hash.CertId]bool{}
	for _, c := range kept {
		keptIds[c.Id()] = true
	}
	removed := 0
	for _, c := range all {
		id := c.Id()
		if !keptIds[id] {
			s.erase(id)
			removed++
		}
	}
	return removed
}
