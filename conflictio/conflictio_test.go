package conflictio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/merge"
	"github.com/vcsforge/core/vpath"
)

func sampleConflicts() []*merge.Conflict {
	return []*merge.Conflict{
		{
			Kind: merge.OrphanedNode,
			Node: 5, LeftParent: 99, LeftName: "orphan.txt",
		},
		{
			Kind: merge.DroppedModified,
			Node: 7, IsDir: false,
			AncestorContent: hash.FileIdOf([]byte("anc")),
			RightParent:     1, RightName: "kept.txt",
			RightContent: hash.FileIdOf([]byte("right-v2")),
		},
		{
			Kind: merge.DuplicateName,
			Node: 9, OtherNode: 10,
			LeftParent: 1, LeftName: "dup.txt",
		},
		{
			Kind: merge.Content,
			Node: 11,
			AncestorContent: hash.FileIdOf([]byte("anc")),
			LeftContent:     hash.FileIdOf([]byte("left")),
			RightContent:    hash.FileIdOf([]byte("right")),
		},
	}
}

func TestWriteParseRoundTripNoResolutions(t *testing.T) {
	conflicts := sampleConflicts()
	left := hash.RevisionIdOf([]byte("left-rev"))
	right := hash.RevisionIdOf([]byte("right-rev"))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, left, right, hash.RevisionId{}, conflicts))

	resolutions, err := Parse(bytes.NewReader(buf.Bytes()), left, right, conflicts)
	require.NoError(t, err)
	require.Len(t, resolutions, len(conflicts))
	for _, r := range resolutions {
		assert.Nil(t, r)
	}
}

func TestWriteParseRoundTripWithResolutions(t *testing.T) {
	conflicts := sampleConflicts()
	left := hash.RevisionIdOf([]byte("left-rev"))
	right := hash.RevisionIdOf([]byte("right-rev"))

	renamePath, err := vpath.ParseFilePath("orphan-renamed.txt")
	require.NoError(t, err)
	conflicts[0].Resolution = &merge.Resolution{Kind: merge.ResolveRename, Path: renamePath}

	conflicts[1].Resolution = &merge.Resolution{Kind: merge.ResolveKeep}

	dupRename, err := vpath.ParseFilePath("dup-renamed.txt")
	require.NoError(t, err)
	conflicts[2].Resolution = &merge.Resolution{
		Kind: merge.ResolveKeep,
		RightKind: merge.ResolveRename, RightPath: dupRename,
	}

	userContent := hash.FileIdOf([]byte("resolved-by-hand"))
	conflicts[3].Resolution = &merge.Resolution{Kind: merge.ResolveUser, Content: userContent}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, left, right, hash.RevisionId{}, conflicts))

	resolutions, err := Parse(bytes.NewReader(buf.Bytes()), left, right, conflicts)
	require.NoError(t, err)
	require.Len(t, resolutions, 4)

	assert.Equal(t, merge.ResolveRename, resolutions[0].Kind)
	assert.Equal(t, "orphan-renamed.txt", resolutions[0].Path.String())

	assert.Equal(t, merge.ResolveKeep, resolutions[1].Kind)

	assert.Equal(t, merge.ResolveKeep, resolutions[2].Kind)
	assert.Equal(t, merge.ResolveRename, resolutions[2].RightKind)
	assert.Equal(t, "dup-renamed.txt", resolutions[2].RightPath.String())

	assert.Equal(t, merge.ResolveUser, resolutions[3].Kind)
	assert.Equal(t, userContent, resolutions[3].Content)
}

func TestParseRejectsMismatchedConflictSet(t *testing.T) {
	conflicts := sampleConflicts()
	left := hash.RevisionIdOf([]byte("left-rev"))
	right := hash.RevisionIdOf([]byte("right-rev"))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, left, right, hash.RevisionId{}, conflicts))

	mutated := sampleConflicts()
	mutated[0].Node = 123 // no longer matches the serialized stanza

	_, err := Parse(bytes.NewReader(buf.Bytes()), left, right, mutated)
	require.Error(t, err)
	assert.ErrorIs(t, err, errMismatch)
}

func TestParseRejectsWrongRevisionHeader(t *testing.T) {
	conflicts := sampleConflicts()
	left := hash.RevisionIdOf([]byte("left-rev"))
	right := hash.RevisionIdOf([]byte("right-rev"))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, left, right, hash.RevisionId{}, conflicts))

	wrongLeft := hash.RevisionIdOf([]byte("some-other-rev"))
	_, err := Parse(bytes.NewReader(buf.Bytes()), wrongLeft, right, conflicts)
	require.Error(t, err)
	assert.ErrorIs(t, err, errMismatch)
}
