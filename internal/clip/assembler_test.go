package clip

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karnali/wildguard-go/internal/errors"
)

// captureSink records submitted clips.
type captureSink struct {
	mu    sync.Mutex
	clips []submitted
}

type submitted struct {
	token    string
	payload  []byte
	sequence int
}

func (c *captureSink) SubmitClip(cameraToken string, payload []byte, sequence int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clips = append(c.clips, submitted{token: cameraToken, payload: payload, sequence: sequence})
}

func (c *captureSink) all() []submitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]submitted(nil), c.clips...)
}

func TestAssemblyPreservesChunkOrder(t *testing.T) {
	sink := &captureSink{}
	assembler := NewAssembler(sink, 0, nil)

	assembler.Begin("cam-1", 5, 9)
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("aaa")))
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("bbb")))
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("ccc")))
	require.NoError(t, assembler.End("cam-1", 5))

	clips := sink.all()
	require.Len(t, clips, 1)
	assert.Equal(t, "cam-1", clips[0].token)
	assert.Equal(t, 5, clips[0].sequence)
	assert.Equal(t, []byte("aaabbbccc"), clips[0].payload)
	assert.False(t, assembler.Receiving("cam-1"))
}

func TestSequenceMismatchDiscardsClip(t *testing.T) {
	sink := &captureSink{}
	assembler := NewAssembler(sink, 0, nil)

	assembler.Begin("cam-1", 5, 0)
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("data")))

	err := assembler.End("cam-1", 6)
	require.Error(t, err)

	var enhanced *errors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.Equal(t, string(errors.CategoryProtocol), enhanced.GetCategory())

	assert.Empty(t, sink.all(), "no task should be submitted on mismatch")
	assert.False(t, assembler.Receiving("cam-1"))
}

func TestDeclaredChunkCountIsVerified(t *testing.T) {
	sink := &captureSink{}
	assembler := NewAssembler(sink, 0, nil)

	assembler.Begin("cam-1", 1, 0)
	assembler.DeclareChunkCount("cam-1", 1, 3)
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("only")))
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("two")))

	err := assembler.End("cam-1", 1)
	require.Error(t, err)
	assert.Empty(t, sink.all())
}

func TestDeclaredSizeIsVerified(t *testing.T) {
	sink := &captureSink{}
	assembler := NewAssembler(sink, 0, nil)

	assembler.Begin("cam-1", 1, 1000)
	require.NoError(t, assembler.AppendChunk("cam-1", make([]byte, 999)))

	err := assembler.End("cam-1", 1)
	require.Error(t, err)
	assert.Empty(t, sink.all())

	// Exact declared size passes
	assembler.Begin("cam-1", 2, 1000)
	require.NoError(t, assembler.AppendChunk("cam-1", make([]byte, 1000)))
	require.NoError(t, assembler.End("cam-1", 2))
	require.Len(t, sink.all(), 1)
}

func TestChunkWithoutOpenClipIsProtocolError(t *testing.T) {
	assembler := NewAssembler(&captureSink{}, 0, nil)

	err := assembler.AppendChunk("cam-1", []byte("orphan"))
	require.Error(t, err)

	var enhanced *errors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.Equal(t, string(errors.CategoryProtocol), enhanced.GetCategory())
}

func TestOversizeClipIsDiscarded(t *testing.T) {
	sink := &captureSink{}
	assembler := NewAssembler(sink, 8, nil)

	assembler.Begin("cam-1", 1, 0)
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("12345678")))

	err := assembler.AppendChunk("cam-1", []byte("x"))
	require.Error(t, err)
	assert.False(t, assembler.Receiving("cam-1"))

	// Clip is gone, End reports no open clip
	assert.Error(t, assembler.End("cam-1", 1))
	assert.Empty(t, sink.all())
}

func TestDisconnectDiscardsPendingClip(t *testing.T) {
	sink := &captureSink{}
	assembler := NewAssembler(sink, 0, nil)

	assembler.Begin("cam-1", 1, 0)
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("partial")))

	assembler.Discard("cam-1")

	assert.False(t, assembler.Receiving("cam-1"))
	assert.Error(t, assembler.End("cam-1", 1))
	assert.Empty(t, sink.all())
}

func TestBeginWhileReceivingRestartsAssembly(t *testing.T) {
	sink := &captureSink{}
	assembler := NewAssembler(sink, 0, nil)

	assembler.Begin("cam-1", 1, 0)
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("old")))

	assembler.Begin("cam-1", 2, 0)
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("new")))
	require.NoError(t, assembler.End("cam-1", 2))

	clips := sink.all()
	require.Len(t, clips, 1)
	assert.Equal(t, []byte("new"), clips[0].payload)
	assert.Equal(t, 2, clips[0].sequence)
}

func TestTokensAssembleIndependently(t *testing.T) {
	sink := &captureSink{}
	assembler := NewAssembler(sink, 0, nil)

	assembler.Begin("cam-1", 1, 0)
	assembler.Begin("cam-2", 7, 0)
	require.NoError(t, assembler.AppendChunk("cam-1", []byte("one")))
	require.NoError(t, assembler.AppendChunk("cam-2", []byte("two")))
	require.NoError(t, assembler.End("cam-2", 7))
	require.NoError(t, assembler.End("cam-1", 1))

	clips := sink.all()
	require.Len(t, clips, 2)
	assert.Equal(t, "cam-2", clips[0].token)
	assert.Equal(t, []byte("two"), clips[0].payload)
	assert.Equal(t, "cam-1", clips[1].token)
	assert.Equal(t, []byte("one"), clips[1].payload)
}
