package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPubSub_PublishSubscribe(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	received := make(chan *Message, 1)
	sub, err := ps.Subscribe(context.Background(), Topics.Calls(), func(ctx context.Context, msg *Message) {
		received <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	msg := &Message{
		Topic:   Topics.Calls(),
		Type:    "call.created",
		Payload: json.RawMessage(`{"callId":"c1"}`),
	}
	require.NoError(t, ps.Publish(context.Background(), Topics.Calls(), msg))

	select {
	case got := <-received:
		assert.Equal(t, "call.created", got.Type)
		assert.JSONEq(t, `{"callId":"c1"}`, string(got.Payload))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestMemoryPubSub_TopicIsolation(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	calls := make(chan *Message, 1)
	_, err := ps.Subscribe(context.Background(), Topics.Calls(), func(ctx context.Context, msg *Message) {
		calls <- msg
	})
	require.NoError(t, err)

	require.NoError(t, ps.Publish(context.Background(), Topics.Presence(), &Message{Type: "presence.changed"}))

	select {
	case <-calls:
		t.Fatal("message leaked across topics")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryPubSub_Unsubscribe(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	received := make(chan *Message, 1)
	sub, err := ps.Subscribe(context.Background(), Topics.Presence(), func(ctx context.Context, msg *Message) {
		received <- msg
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ps.SubscriberCount(Topics.Presence()))

	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, ps.SubscriberCount(Topics.Presence()))
	assert.Equal(t, 0, ps.TopicCount())

	require.NoError(t, ps.Publish(context.Background(), Topics.Presence(), &Message{Type: "presence.changed"}))
	select {
	case <-received:
		t.Fatal("unsubscribed handler was invoked")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryPubSub_MultipleSubscribers(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	a := make(chan *Message, 1)
	b := make(chan *Message, 1)
	_, err := ps.Subscribe(context.Background(), Topics.Calls(), func(ctx context.Context, msg *Message) { a <- msg })
	require.NoError(t, err)
	_, err = ps.Subscribe(context.Background(), Topics.Calls(), func(ctx context.Context, msg *Message) { b <- msg })
	require.NoError(t, err)

	require.NoError(t, ps.Publish(context.Background(), Topics.Calls(), &Message{Type: "call.ended"}))

	for _, ch := range []chan *Message{a, b} {
		select {
		case got := <-ch:
			assert.Equal(t, "call.ended", got.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the message")
		}
	}
}

func TestMemoryPubSub_PublishToEmptyTopic(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	assert.NoError(t, ps.Publish(context.Background(), "nobody-home", &Message{Type: "x"}))
}

func TestMemoryPubSub_ClosedRejectsOperations(t *testing.T) {
	ps := NewMemoryPubSub()
	require.NoError(t, ps.Close())

	err := ps.Publish(context.Background(), Topics.Calls(), &Message{Type: "x"})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = ps.Subscribe(context.Background(), Topics.Calls(), func(ctx context.Context, msg *Message) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTopicBuilder(t *testing.T) {
	assert.Equal(t, "calls", Topics.Calls())
	assert.Equal(t, "presence", Topics.Presence())
	assert.Equal(t, "user:alice", Topics.User("alice"))
}
