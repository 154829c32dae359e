package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient() *Client {
	return NewClient(nil, nil, testLogger())
}

// takeMessage pops one queued envelope without blocking
func takeMessage(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return &msg
	default:
		t.Fatal("no message queued")
		return nil
	}
}

func TestClient_Bind(t *testing.T) {
	c := newTestClient()
	assert.Empty(t, c.UserID())
	assert.NotEmpty(t, c.ID())

	c.Bind("alice")
	assert.Equal(t, "alice", c.UserID())

	c.Bind("")
	assert.Empty(t, c.UserID(), "binding can be revoked")
}

func TestClient_UniqueIDs(t *testing.T) {
	a := newTestClient()
	b := newTestClient()
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestClient_SendWrapsInEnvelope(t *testing.T) {
	c := newTestClient()

	require.NoError(t, c.Send("call_ringing", map[string]string{"callId": "c1"}))

	msg := takeMessage(t, c)
	assert.Equal(t, "call_ringing", msg.Type)
	assert.JSONEq(t, `{"callId":"c1"}`, string(msg.Payload))
	assert.False(t, msg.Timestamp.IsZero())
}

func TestClient_SendNeverBlocksWhenBufferFull(t *testing.T) {
	c := newTestClient()

	for i := 0; i < sendBufferSize+10; i++ {
		require.NoError(t, c.Send("incoming_call", map[string]int{"n": i}))
	}

	// The buffer holds exactly its capacity; the overflow was dropped, not
	// queued and not an error.
	assert.Len(t, c.send, sendBufferSize)
}

func TestClient_SendAfterCloseIsNoOp(t *testing.T) {
	c := newTestClient()
	c.closed.Store(true)

	require.NoError(t, c.Send("registered", map[string]bool{"success": true}))
	assert.Empty(t, c.send)
}

func TestClient_SendRejectsUnmarshalablePayload(t *testing.T) {
	c := newTestClient()
	err := c.Send("bad", func() {})
	assert.Error(t, err)
}

func TestClient_SendPreservesOrder(t *testing.T) {
	c := newTestClient()
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Send("event", map[string]string{"seq": fmt.Sprint(i)}))
	}
	for i := 0; i < 5; i++ {
		msg := takeMessage(t, c)
		assert.JSONEq(t, fmt.Sprintf(`{"seq":"%d"}`, i), string(msg.Payload))
	}
}
