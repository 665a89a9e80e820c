package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff3MergeNonOverlappingEdits(t *testing.T) {
	ancestor := []byte("one\ntwo\nthree\n")
	left := []byte("ONE\ntwo\nthree\n")
	right := []byte("one\ntwo\nTHREE\n")

	merged, ok := diff3Merge(ancestor, left, right)
	assert.True(t, ok)
	assert.Equal(t, "ONE\ntwo\nTHREE\n", string(merged))
}

func TestDiff3MergeIdenticalEditBothSides(t *testing.T) {
	ancestor := []byte("a\nb\nc\n")
	left := []byte("a\nX\nc\n")
	right := []byte("a\nX\nc\n")

	merged, ok := diff3Merge(ancestor, left, right)
	assert.True(t, ok)
	assert.Equal(t, "a\nX\nc\n", string(merged))
}

func TestDiff3MergeOverlappingEditsFail(t *testing.T) {
	ancestor := []byte("a\nb\nc\n")
	left := []byte("a\nLEFT\nc\n")
	right := []byte("a\nRIGHT\nc\n")

	_, ok := diff3Merge(ancestor, left, right)
	assert.False(t, ok)
}

func TestDiff3MergeEditNearBothEnds(t *testing.T) {
	ancestor := []byte("head\nmiddle\ntail\n")
	left := []byte("HEAD\nmiddle\ntail\n")
	right := []byte("head\nmiddle\nTAIL\n")

	merged, ok := diff3Merge(ancestor, left, right)
	assert.True(t, ok)
	assert.Equal(t, "HEAD\nmiddle\nTAIL\n", string(merged))
}

func TestDiff3MergeEmptyAncestor(t *testing.T) {
	// A brand-new file both sides agree on (e.g. after a rename alignment)
	// has no ancestor content at all.
	merged, ok := diff3Merge(nil, []byte("same\n"), []byte("same\n"))
	assert.True(t, ok)
	assert.Equal(t, "same\n", string(merged))
}
