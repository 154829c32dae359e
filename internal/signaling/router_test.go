package signaling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffer_ForwardsBytesUntouchedAndStripsTarget(t *testing.T) {
	m, _ := newTestManager(t)
	chA := register(t, m, "alice")
	chB := register(t, m, "bob")
	dialCall(t, m, "c1", chA, chB)

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1\r\n"}`)
	m.Offer(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", SDP: sdp})

	got, ok := chB.lastOf(EventWebRTCOffer)
	require.True(t, ok)
	p := got.(SignalPayload)
	assert.Equal(t, sdp, p.SDP, "opaque bytes must survive the hop unmodified")
	assert.Equal(t, "alice", p.From)
	assert.Empty(t, p.To, "routing target is stripped on forward")
}

func TestRoute_DropsLoopback(t *testing.T) {
	m, _ := newTestManager(t)
	chA := register(t, m, "alice")
	chA.reset()

	m.Offer(chA, SignalPayload{CallID: "c1", From: "alice", To: "alice", SDP: json.RawMessage(`"x"`)})

	assert.Empty(t, chA.eventNames())
	assert.Empty(t, m.Snapshot().ActiveCalls)
}

func TestRoute_WithoutCallRecordUsesDirectory(t *testing.T) {
	m, _ := newTestManager(t)
	chA := register(t, m, "alice")
	chB := register(t, m, "bob")
	chB.reset()

	// No call registered under this id; the router still delivers.
	m.Candidate(chA, SignalPayload{CallID: "ghost", From: "alice", To: "bob", Candidate: json.RawMessage(`{"candidate":"..."}`)})

	assert.Equal(t, 1, chB.countOf(EventICECandidate))
}

func TestRoute_QueuesForOfflineTargetInOrder(t *testing.T) {
	m, _ := newTestManager(t)
	chA := register(t, m, "alice")

	m.Offer(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", SDP: json.RawMessage(`"first"`)})
	m.Offer(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", SDP: json.RawMessage(`"second"`)})

	chB := register(t, m, "bob")

	var sdps []string
	for _, ev := range chB.events() {
		if ev.Event == EventWebRTCOffer {
			sdps = append(sdps, string(ev.Payload.(SignalPayload).SDP))
		}
	}
	assert.Equal(t, []string{`"first"`, `"second"`}, sdps, "mailbox drains in arrival order")
}

func TestRoute_StaleSnapshotFallsBackToDirectory(t *testing.T) {
	m, _ := newTestManager(t)
	chA := register(t, m, "alice")
	chB := register(t, m, "bob")
	dialCall(t, m, "c1", chA, chB)

	// Bob re-registers, which revokes the old channel's binding. Force the
	// per-call snapshot back to the dead channel: the router must notice the
	// mismatched binding and fall back to the directory.
	chB2 := newFakeChannel()
	m.Register(chB2, RegisterPayload{UserID: "bob"})
	m.mu.Lock()
	m.calls["c1"].channels["bob"] = chB
	m.mu.Unlock()
	chB.reset()
	chB2.reset()

	m.Answer(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", SDP: json.RawMessage(`"a"`)})

	assert.Equal(t, 0, chB.countOf(EventWebRTCAnswer), "nothing lands on the dead channel")
	assert.Equal(t, 1, chB2.countOf(EventWebRTCAnswer))
}

func TestOffer_AccountingBumpsAndAnswerClears(t *testing.T) {
	m, mock := newTestManager(t)
	chA := register(t, m, "alice")
	chB := register(t, m, "bob")
	m.InitiateCall(chA, CallInitiatePayload{CallID: "c1", CallerID: "alice", ReceiverIDs: []string{"bob"}})

	m.Offer(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", SDP: json.RawMessage(`"o1"`)})
	mock.Add(time.Second)
	m.Offer(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", SDP: json.RawMessage(`"o2"`)})

	snap := m.Snapshot()
	require.Len(t, snap.ActiveCalls, 1)
	assert.Equal(t, 2, snap.ActiveCalls[0].OfferAttempts)

	m.Answer(chB, SignalPayload{CallID: "c1", From: "bob", To: "alice", SDP: json.RawMessage(`"a"`)})

	snap = m.Snapshot()
	require.Len(t, snap.ActiveCalls, 1)
	assert.Equal(t, 0, snap.ActiveCalls[0].OfferAttempts, "an answer clears the stall accounting")
}

func TestSignaling_SurvivesNonJSONOpaquePayloads(t *testing.T) {
	m, _ := newTestManager(t)
	chA := register(t, m, "alice")
	chB := register(t, m, "bob")
	dialCall(t, m, "c1", chA, chB)

	// The router never parses SDP; a payload that is not even valid JSON
	// inside the raw field still goes through verbatim.
	weird := json.RawMessage(`"QmFzZTY0IGJsb2Ig8J+TniBub3QgU0RQIGF0IGFsbA=="`)
	m.Offer(chA, SignalPayload{CallID: "c1", From: "alice", To: "bob", SDP: weird})

	got, ok := chB.lastOf(EventWebRTCOffer)
	require.True(t, ok)
	assert.Equal(t, weird, got.(SignalPayload).SDP)
}
