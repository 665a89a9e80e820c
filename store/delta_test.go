package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaApplyAndInvert(t *testing.T) {
	old := []byte("the quick brown fox jumps")
	new := []byte("the quick red fox jumps over")

	d := ComputeDelta(old, new)
	got, err := d.Apply(old)
	require.NoError(t, err)
	assert.Equal(t, new, got)

	inv := d.Invert()
	back, err := inv.Apply(new)
	require.NoError(t, err)
	assert.Equal(t, old, back)
}

func TestDeltaEncodeDecodeRoundTrip(t *testing.T) {
	d := ComputeDelta([]byte("hello world"), []byte("hello there world"))
	enc := d.Encode()
	got, err := DecodeDelta(enc)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDeltaApplyRejectsMismatchedBase(t *testing.T) {
	d := ComputeDelta([]byte("aaa"), []byte("bbb"))
	_, err := d.Apply([]byte("completely different"))
	assert.Error(t, err)
}
