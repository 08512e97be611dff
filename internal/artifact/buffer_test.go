package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextServesSecondMostRecent(t *testing.T) {
	buffer := NewBuffer(4)

	_, ok := buffer.Next("cam-1")
	assert.False(t, ok)

	buffer.Add("cam-1", Artifact{Sequence: 1})
	next, ok := buffer.Next("cam-1")
	require.True(t, ok)
	assert.Equal(t, 1, next.Sequence, "single artifact is served as-is")

	buffer.Add("cam-1", Artifact{Sequence: 2})
	buffer.Add("cam-1", Artifact{Sequence: 3})
	next, ok = buffer.Next("cam-1")
	require.True(t, ok)
	assert.Equal(t, 2, next.Sequence, "one behind the latest")
}

func TestRingEvictsOldest(t *testing.T) {
	buffer := NewBuffer(3)

	for seq := 1; seq <= 5; seq++ {
		buffer.Add("cam-1", Artifact{Sequence: seq})
	}

	assert.Equal(t, 3, buffer.Count("cam-1"))
	_, ok := buffer.BySequence("cam-1", 1)
	assert.False(t, ok)
	_, ok = buffer.BySequence("cam-1", 2)
	assert.False(t, ok)

	got, ok := buffer.BySequence("cam-1", 3)
	require.True(t, ok)
	assert.Equal(t, 3, got.Sequence)
}

func TestBySequenceReturnsPayload(t *testing.T) {
	buffer := NewBuffer(4)
	buffer.Add("cam-1", Artifact{Sequence: 7, Payload: []byte("bytes"), ContentType: "image/jpeg"})

	got, ok := buffer.BySequence("cam-1", 7)
	require.True(t, ok)
	assert.Equal(t, []byte("bytes"), got.Payload)
	assert.Equal(t, "image/jpeg", got.ContentType)

	_, ok = buffer.BySequence("cam-1", 8)
	assert.False(t, ok)
}

func TestTokensAreIsolated(t *testing.T) {
	buffer := NewBuffer(4)
	buffer.Add("cam-1", Artifact{Sequence: 1})
	buffer.Add("cam-2", Artifact{Sequence: 9})

	got, ok := buffer.Next("cam-2")
	require.True(t, ok)
	assert.Equal(t, 9, got.Sequence)

	buffer.Remove("cam-1")
	assert.Equal(t, 0, buffer.Count("cam-1"))
	assert.Equal(t, 1, buffer.Count("cam-2"))
}
