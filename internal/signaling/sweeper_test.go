package signaling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajeshbanoth/backend-call/internal/pubsub"
)

func TestSweep_TearsDownStalledOffer(t *testing.T) {
	m, mock := newTestManager(t)
	chA := register(t, m, "alice")
	chB := register(t, m, "bob")
	m.InitiateCall(chA, CallInitiatePayload{CallID: "c1", CallerID: "alice", ReceiverIDs: []string{"bob"}})
	m.Offer(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", SDP: json.RawMessage(`"o"`)})

	mock.Add(9 * time.Second)
	m.sweep()
	assert.Len(t, m.Snapshot().ActiveCalls, 1, "inside the stall window the call survives")

	mock.Add(2 * time.Second)
	m.sweep()

	timeout, ok := chA.lastOf(EventCallTimeout)
	require.True(t, ok)
	assert.Equal(t, CallTimeoutPayload{CallID: "c1", Reason: ReasonOfferStalled}, timeout.(CallTimeoutPayload))

	ended, ok := chB.lastOf(EventCallEnded)
	require.True(t, ok)
	assert.Equal(t, ReasonOfferStalled, ended.(CallEndedPayload).Reason)

	snap := m.Snapshot()
	assert.Empty(t, snap.ActiveCalls)
	assert.Equal(t, PresenceAvailable, snap.Presence["alice"].Status)
	assert.Equal(t, PresenceAvailable, snap.Presence["bob"].Status)
}

func TestSweep_IgnoresCallsWithoutOffers(t *testing.T) {
	m, mock := newTestManager(t)
	chA := register(t, m, "alice")
	register(t, m, "bob")
	m.InitiateCall(chA, CallInitiatePayload{CallID: "c1", CallerID: "alice", ReceiverIDs: []string{"bob"}})

	// No offer was ever sent; only the no-answer timer may kill this call.
	mock.Add(30 * time.Second)
	m.sweep()

	assert.Len(t, m.Snapshot().ActiveCalls, 1)
	assert.Equal(t, 0, chA.countOf(EventCallTimeout))
}

func TestSweep_IgnoresActiveCalls(t *testing.T) {
	m, mock := newTestManager(t)
	chA := register(t, m, "alice")
	chB := register(t, m, "bob")
	dialCall(t, m, "c1", chA, chB)
	m.Offer(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", SDP: json.RawMessage(`"o"`)})

	mock.Add(time.Hour)
	m.sweep()

	assert.Len(t, m.Snapshot().ActiveCalls, 1, "offer stall applies to initiated calls only")
}

func TestSweep_AnswerResetsStallClock(t *testing.T) {
	m, mock := newTestManager(t)
	chA := register(t, m, "alice")
	chB := register(t, m, "bob")
	m.InitiateCall(chA, CallInitiatePayload{CallID: "c1", CallerID: "alice", ReceiverIDs: []string{"bob"}})

	m.Offer(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", SDP: json.RawMessage(`"o"`)})
	mock.Add(8 * time.Second)
	m.Answer(chB, SignalPayload{CallID: "c1", From: "bob", To: "alice", SDP: json.RawMessage(`"a"`)})

	mock.Add(5 * time.Second)
	m.sweep()

	assert.Len(t, m.Snapshot().ActiveCalls, 1, "an answered offer is not a stalled offer")
}

func TestSweep_TrimsExpiredCandidates(t *testing.T) {
	m, mock := newTestManager(t)
	chA := register(t, m, "alice")
	chB := register(t, m, "bob")
	dialCall(t, m, "c1", chA, chB)

	m.Candidate(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", Candidate: json.RawMessage(`{"candidate":"old"}`)})
	mock.Add(50 * time.Second)
	m.Candidate(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", Candidate: json.RawMessage(`{"candidate":"new"}`)})

	mock.Add(15 * time.Second)
	m.sweep()

	m.mu.Lock()
	buf := m.calls["c1"].iceBuffers["bob"]
	m.mu.Unlock()
	require.Len(t, buf, 1, "only candidates inside the TTL survive a sweep")
	assert.JSONEq(t, `{"candidate":"new"}`, string(buf[0].Candidate))

	// Once everything aged out the per-user buffer disappears entirely.
	mock.Add(2 * time.Minute)
	m.sweep()

	m.mu.Lock()
	_, exists := m.calls["c1"].iceBuffers["bob"]
	m.mu.Unlock()
	assert.False(t, exists)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	m := NewManager(clock.New(), pubsub.NewMemoryPubSub(), testLogger(), Options{SweepInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
