package store

import (
	"crypto/ed25519"
	"database/sql"

	"github.com/vcsforge/core/certs"
	"github.com/vcsforge/core/hash"
)

// PersistKey writes a public key row (public_keys(id, name, data) in the
// logical schema, spec.md §6.1).
func PersistKey(db *sql.DB, k *certs.KeyRecord) error {
	_, err := db.Exec("INSERT OR REPLACE INTO public_keys (id, name, data) VALUES (?, ?, ?)",
		k.Id.String(), k.Name, []byte(k.Data))
	return err
}

// LoadKeys reads every persisted public key into dest.
func LoadKeys(db *sql.DB, dest *certs.Store) error {
	rows, err := db.Query("SELECT id, name, data FROM public_keys")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var idStr, name string
		var data []byte
		if err := rows.Scan(&idStr, &name, &data); err != nil {
			return err
		}
		h, err := hash.ParseHash(idStr)
		if err != nil {
			continue
		}
		dest.PutKey(&certs.KeyRecord{Id: hash.KeyId{Hash: h}, Name: name, Data: ed25519.PublicKey(data)})
	}
	return rows.Err()
}

// PersistCert writes a cert row (revision_certs in the logical schema).
func PersistCert(db *sql.DB, c *certs.Cert) error {
	id := c.Id()
	_, err := db.Exec(
		"INSERT OR IGNORE INTO revision_certs (hash, revision_id, name, value, keypair_id, signature) VALUES (?, ?, ?, ?, ?, ?)",
		id.String(), c.Ident.String(), string(c.Name), string(c.Value), c.Key.String(), c.Sig,
	)
	return err
}

// SyncCertsFor replaces every revision_certs row for ident with exactly
// the certs in kept, the on-disk half of fix_bad_certs (spec.md §3.8):
// certs.Store.FixBadCerts only updates its in-memory indices, so a
// maintenance caller must also overwrite the persisted rows or the
// erased certs would simply reappear on the next LoadCerts.
func SyncCertsFor(db *sql.DB, ident hash.RevisionId, kept []*certs.Cert) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM revision_certs WHERE revision_id = ?", ident.String()); err != nil {
		tx.Rollback()
		return err
	}
	for _, c := range kept {
		id := c.Id()
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO revision_certs (hash, revision_id, name, value, keypair_id, signature) VALUES (?, ?, ?, ?, ?, ?)",
			id.String(), c.Ident.String(), string(c.Name), string(c.Value), c.Key.String(), c.Sig,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadCerts reads every persisted cert into dest.
func LoadCerts(db *sql.DB, dest *certs.Store) error {
	rows, err := db.Query("SELECT revision_id, name, value, keypair_id, signature FROM revision_certs")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var revStr, name, value, keyStr string
		var sig []byte
		if err := rows.Scan(&revStr, &name, &value, &keyStr, &sig); err != nil {
			return err
		}
		rev, err := parseRevisionId(revStr)
		if err != nil {
			continue
		}
		keyHash, err := hash.ParseHash(keyStr)
		if err != nil {
			continue
		}
		c := &certs.Cert{Ident: rev, Name: certs.CertName(name), Value: certs.CertValue(value), Key: hash.KeyId{Hash: keyHash}, Sig: sig}
		if _, err := dest.PutCert(c); err != nil {
			continue
		}
	}
	return rows.Err()
}
