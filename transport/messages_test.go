package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		msg, err := decodeInbound([]byte(`{"type":"connected","session_id":"abc-123"}`))
		require.NoError(t, err)
		m, ok := msg.(Connected)
		require.True(t, ok)
		assert.Equal(t, "abc-123", m.SessionID)
	})

	t.Run("ack", func(t *testing.T) {
		msg, err := decodeInbound([]byte(`{"type":"ack","chunk_number":7,"size":4096}`))
		require.NoError(t, err)
		m, ok := msg.(Ack)
		require.True(t, ok)
		assert.Equal(t, uint64(7), m.ChunkNumber)
		assert.Equal(t, 4096, m.Size)
	})

	t.Run("transcript", func(t *testing.T) {
		msg, err := decodeInbound([]byte(`{"type":"transcript","text":"hello there","timestamp":"2025-06-01T10:30:00Z","confidence":0.9}`))
		require.NoError(t, err)
		m, ok := msg.(Transcript)
		require.True(t, ok)
		assert.Equal(t, "hello there", m.Text)
		assert.Equal(t, time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC), m.Timestamp)
		assert.InDelta(t, 0.9, m.Confidence, 0.001)
	})

	t.Run("error", func(t *testing.T) {
		msg, err := decodeInbound([]byte(`{"type":"error","message":"decoder choked"}`))
		require.NoError(t, err)
		m, ok := msg.(ServerError)
		require.True(t, ok)
		assert.Equal(t, "decoder choked", m.Message)
	})

	t.Run("unknown type is inert", func(t *testing.T) {
		msg, err := decodeInbound([]byte(`{"type":"bogus","whatever":42}`))
		require.NoError(t, err)
		m, ok := msg.(Unknown)
		require.True(t, ok)
		assert.Equal(t, "bogus", m.Type)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := decodeInbound([]byte(`{nope`))
		assert.Error(t, err)
	})
}
