package store

import (
	"github.com/h2non/filetype"
)

// BlobKind classifies a file's content for storage/merge decisions: a
// text blob is eligible for the three-way line merger (spec.md §4.5),
// anything else is treated as opaque.
type BlobKind int

const (
	// BlobText is content the line-oriented merger may operate on.
	BlobText BlobKind = iota
	// BlobBinary is opaque content (images, archives, audio/video,
	// documents) that only supports whole-file conflict resolution.
	BlobBinary
)

// sniffLen mirrors the teacher's head-sniffing window for magic-byte
// detection (main.go's GitFile.recordFileType).
const sniffLen = 261

// ClassifyBlob sniffs data's leading bytes to decide whether it is safe
// to treat as mergeable text, grounded on the teacher's
// GitFile.recordFileType head-sniffing logic generalized from p4
// filetypes to the binary/text distinction this core needs.
func ClassifyBlob(data []byte) BlobKind {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if filetype.IsImage(head) || filetype.IsVideo(head) || filetype.IsArchive(head) || filetype.IsAudio(head) || filetype.IsDocument(head) {
		return BlobBinary
	}
	return BlobText
}
