package store

import "github.com/vcsforge/core/hash"

func parseRevisionId(s string) (hash.RevisionId, error) {
	h, err := hash.ParseHash(s)
	if err != nil {
		return hash.RevisionId{}, err
	}
	return hash.RevisionId{Hash: h}, nil
}

func parseFileId(s string) (hash.FileId, error) {
	h, err := hash.ParseHash(s)
	if err != nil {
		return hash.FileId{}, err
	}
	return hash.FileId{Hash: h}, nil
}
