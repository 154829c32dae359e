// Package signaling implements the call session manager: the in-memory
// state machine behind the WebSocket signaling server. It owns the user
// directory, presence table, pending-signal mailboxes, and the call
// registry, and routes opaque WebRTC payloads between participants without
// carrying any media.
package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rajeshbanoth/backend-call/internal/pubsub"
)

const maxUserIDLen = 128

// Options holds the tunable timeouts of the session manager
type Options struct {
	// NoAnswerTimeout tears down a call that was never accepted.
	NoAnswerTimeout time.Duration

	// OfferStallTimeout tears down an initiated call whose last offer went
	// unanswered. Enforced by the sweeper.
	OfferStallTimeout time.Duration

	// CandidateTTL bounds how long ICE candidates stay buffered.
	CandidateTTL time.Duration

	// SweepInterval is the sweeper tick.
	SweepInterval time.Duration
}

// DefaultOptions returns the wire-visible baseline timeouts
func DefaultOptions() Options {
	return Options{
		NoAnswerTimeout:   60 * time.Second,
		OfferStallTimeout: 10 * time.Second,
		CandidateTTL:      60 * time.Second,
		SweepInterval:     5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.NoAnswerTimeout <= 0 {
		o.NoAnswerTimeout = def.NoAnswerTimeout
	}
	if o.OfferStallTimeout <= 0 {
		o.OfferStallTimeout = def.OfferStallTimeout
	}
	if o.CandidateTTL <= 0 {
		o.CandidateTTL = def.CandidateTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = def.SweepInterval
	}
	return o
}

// Manager is the call session manager. It is the single writer over the
// directory, presence, pending, call, and timer tables: every handler takes
// the one mutex for its full read-modify-emit cycle, which is what makes
// accepted order total (outbound sends are non-blocking, so holding the
// lock across them is safe).
type Manager struct {
	mu sync.Mutex

	// directory maps user id -> live channel. Authoritative; the per-call
	// channel snapshots are a cache over it.
	directory map[string]Channel

	// presence maps user id -> availability + current call.
	presence map[string]presenceEntry

	// pending holds per-user FIFO mailboxes for events that arrived while
	// the user had no live channel. Created lazily, deleted on drain.
	pending map[string][]pendingEvent

	// calls maps call id -> registered call record.
	calls map[string]*Call

	// timers maps call id -> armed no-answer timer.
	timers map[string]*clock.Timer

	clock  clock.Clock
	events pubsub.PubSub
	logger *slog.Logger
	opts   Options
}

// NewManager creates a session manager. events receives the non-ordered
// lifecycle stream (call.created etc.) and may be nil to disable it.
func NewManager(clk clock.Clock, events pubsub.PubSub, logger *slog.Logger, opts Options) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		directory: make(map[string]Channel),
		presence:  make(map[string]presenceEntry),
		pending:   make(map[string][]pendingEvent),
		calls:     make(map[string]*Call),
		timers:    make(map[string]*clock.Timer),
		clock:     clk,
		events:    events,
		logger:    logger,
		opts:      opts.withDefaults(),
	}
}

func validUserID(id string) bool {
	if id == "" || len(id) > maxUserIDLen {
		return false
	}
	if strings.TrimSpace(id) != id || strings.ContainsAny(id, "\n\r\t") {
		return false
	}
	return true
}

func sendError(ch Channel, code, message string) {
	_ = ch.Send(EventError, ErrorPayload{Code: code, Message: message})
}

// ============================================================================
// Registration & presence
// ============================================================================

// Register binds a user id to a channel. A previous channel for the same id
// is told to go away and closed. Presence survives when the user has a live
// call (reconnect mid-call); otherwise it resets to available. Queued
// events are delivered after the registered ack, in insertion order.
func (m *Manager) Register(ch Channel, p RegisterPayload) {
	if !validUserID(p.UserID) {
		sendError(ch, "invalid_user", "Missing or malformed user id")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.directory[p.UserID]; ok && old.ID() != ch.ID() {
		_ = old.Send(EventForceDisconnect, ForceDisconnectPayload{
			Message: "Another session registered for this user",
		})
		old.Bind("") // stale per-call snapshots now fail validation
		_ = old.Close()
		m.logger.Info("superseded previous channel", "user_id", p.UserID, "old_channel", old.ID(), "new_channel", ch.ID())
	}

	m.directory[p.UserID] = ch
	ch.Bind(p.UserID)

	if call := m.liveCallLocked(p.UserID); call != nil {
		// Reconnect mid-call: keep presence, refresh the channel snapshot.
		call.channels[p.UserID] = ch
	} else {
		m.setPresenceLocked(p.UserID, PresenceAvailable, "")
	}

	_ = ch.Send(EventRegistered, RegisteredPayload{Success: true})

	for _, ev := range m.pending[p.UserID] {
		_ = ch.Send(ev.Event, ev.Payload)
	}
	delete(m.pending, p.UserID)

	m.logger.Info("user registered", "user_id", p.UserID, "channel", ch.ID())
}

// Disconnect handles a transport-level channel close. The directory entry
// is removed only if the closing channel is still the bound one; a
// registration that superseded it already took over. A live call is left
// the same way call_end leaves it, but the user ends up offline.
func (m *Manager) Disconnect(ch Channel) {
	userID := ch.UserID()
	if userID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.directory[userID]
	if !ok || cur.ID() != ch.ID() {
		return
	}
	delete(m.directory, userID)

	if call := m.liveCallLocked(userID); call != nil {
		m.leaveLocked(call, userID, ReasonDisconnected)
	}
	m.setPresenceLocked(userID, PresenceOffline, "")

	m.logger.Info("user disconnected", "user_id", userID, "channel", ch.ID())
}

// UserStatus applies a client-driven presence update. Only available and
// offline may be set from the outside, only by the user's own bound
// channel; the call-derived states are managed by the call lifecycle and
// never overridden here.
func (m *Manager) UserStatus(ch Channel, p UserStatusPayload) {
	status, ok := ParsePresenceStatus(p.Status)
	if !ok || (status != PresenceAvailable && status != PresenceOffline) {
		m.logger.Warn("ignoring user status update", "user_id", p.UserID, "status", p.Status)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bound, ok := m.directory[p.UserID]
	if !ok || bound.ID() != ch.ID() {
		m.logger.Warn("ignoring status update from unbound channel", "user_id", p.UserID, "channel", ch.ID())
		return
	}
	if m.liveCallLocked(p.UserID) != nil {
		return
	}
	m.setPresenceLocked(p.UserID, status, "")
}

// liveCallLocked returns the call the user's presence points at, if it is
// still registered and the user is still a participant.
func (m *Manager) liveCallLocked(userID string) *Call {
	pe, ok := m.presence[userID]
	if !ok || pe.CallID == "" {
		return nil
	}
	call := m.calls[pe.CallID]
	if call == nil || !call.hasParticipant(userID) {
		return nil
	}
	return call
}

func (m *Manager) setPresenceLocked(userID string, status PresenceStatus, callID string) {
	m.presence[userID] = presenceEntry{Status: status, CallID: callID}
	m.publish(pubsub.Topics.Presence(), StreamPresenceChanged, PresenceStreamEvent{
		UserID: userID,
		Status: status,
		CallID: callID,
	})
}

// resetPresenceLocked returns a user to the non-call baseline: available if
// a channel is live, offline otherwise.
func (m *Manager) resetPresenceLocked(userID string) {
	if _, ok := m.directory[userID]; ok {
		m.setPresenceLocked(userID, PresenceAvailable, "")
	} else {
		m.setPresenceLocked(userID, PresenceOffline, "")
	}
}

// ============================================================================
// Call lifecycle
// ============================================================================

// InitiateCall creates a call record and alerts the receiver. A record
// already registered under the same id is stale and gets overwritten, its
// timer reset. The receiver being busy or in another call produces
// call_busy and no record.
func (m *Manager) InitiateCall(ch Channel, p CallInitiatePayload) {
	if p.CallID == "" || p.CallerID == "" || len(p.ReceiverIDs) == 0 {
		sendError(ch, "invalid_call_data", "callId, callerId and receiverIds are required")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	caller, ok := m.directory[p.CallerID]
	if !ok || caller.ID() != ch.ID() {
		sendError(ch, "caller_not_connected", "Caller has no live channel under this id")
		return
	}

	receiver := p.ReceiverIDs[0]
	if pe := m.presence[receiver]; pe.Status == PresenceBusy || pe.Status == PresenceInCall {
		_ = ch.Send(EventCallBusy, CallBusyPayload{CallID: p.CallID, ReceiverID: receiver})
		return
	}

	// A registered record under this id is stale. Tear it down through the
	// normal terminal path so its participants' presence and mailboxes are
	// not left pointing at a call that no longer exists.
	if stale, ok := m.calls[p.CallID]; ok {
		m.logger.Warn("overwriting stale call record", "call_id", p.CallID, "stale_caller", stale.CallerID)
		m.removeCallLocked(stale, "superseded")
	}

	now := m.clock.Now()
	call := newCall(p, now)
	call.channels[p.CallerID] = ch
	m.calls[call.ID] = call

	m.setPresenceLocked(p.CallerID, PresenceBusy, call.ID)

	for _, rid := range p.ReceiverIDs {
		if rch, ok := m.directory[rid]; ok {
			m.setPresenceLocked(rid, PresenceRinging, call.ID)
			_ = rch.Send(EventIncomingCall, p)
		} else {
			m.enqueueLocked(rid, EventIncomingCall, p)
		}
	}

	_ = ch.Send(EventCallRinging, CallRingingPayload{CallID: call.ID, ReceiverID: receiver})

	callID := call.ID
	m.timers[callID] = m.clock.AfterFunc(m.opts.NoAnswerTimeout, func() {
		m.handleNoAnswer(callID)
	})

	m.publish(pubsub.Topics.Calls(), StreamCallCreated, CallStreamEvent{
		CallID:       call.ID,
		CallerID:     call.CallerID,
		Participants: append([]string(nil), call.Participants...),
		CallType:     call.CallType,
	})

	m.logger.Info("call initiated", "call_id", call.ID, "caller_id", p.CallerID, "receiver_id", receiver, "call_type", p.CallType)
}

// AcceptCall moves an initiated call to active. The accepter must be a
// declared participant with a live channel. Accepting an already-active
// call only rebinds the accepter's channel and re-emits start_signaling to
// them, so a reconnected client can repeat the accept harmlessly.
func (m *Manager) AcceptCall(ch Channel, p CallAcceptPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls[p.CallID]
	if call == nil {
		sendError(ch, "call_not_found", "No such call: "+p.CallID)
		return
	}
	if !call.hasParticipant(p.ReceiverID) {
		sendError(ch, "invalid_receiver", "Not a participant of this call")
		return
	}
	accepter, ok := m.directory[p.ReceiverID]
	if !ok {
		sendError(ch, "receiver_not_connected", "Receiver has no live channel")
		return
	}

	if call.Status == CallActive {
		call.channels[p.ReceiverID] = accepter
		_ = accepter.Send(EventStartSignaling, StartSignalingPayload{CallID: call.ID})
		return
	}

	m.cancelTimerLocked(call.ID)
	call.channels[p.ReceiverID] = accepter
	call.Status = CallActive

	m.setPresenceLocked(call.CallerID, PresenceInCall, call.ID)
	m.setPresenceLocked(p.ReceiverID, PresenceInCall, call.ID)

	// call_accepted strictly before the first start_signaling.
	for _, pid := range call.Participants {
		if pid == p.ReceiverID {
			continue
		}
		if pch := m.channelForLocked(call, pid); pch != nil {
			_ = pch.Send(EventCallAccepted, CallAcceptedPayload{CallID: call.ID, ReceiverID: p.ReceiverID})
		}
	}
	for _, pid := range call.Participants {
		if pch := m.channelForLocked(call, pid); pch != nil {
			_ = pch.Send(EventStartSignaling, StartSignalingPayload{CallID: call.ID})
		}
	}

	m.publish(pubsub.Topics.Calls(), StreamCallAnswered, CallStreamEvent{
		CallID:       call.ID,
		CallerID:     call.CallerID,
		Participants: append([]string(nil), call.Participants...),
		CallType:     call.CallType,
	})

	m.logger.Info("call accepted", "call_id", call.ID, "receiver_id", p.ReceiverID)
}

// RejectCall declines a ringing call. Unknown call ids are silent no-ops,
// as is rejecting a call that already went active.
func (m *Manager) RejectCall(ch Channel, p CallRejectPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls[p.CallID]
	if call == nil {
		m.logger.Debug("reject for unknown call", "call_id", p.CallID, "user_id", p.UserID)
		return
	}
	if call.Status != CallInitiated {
		m.logger.Debug("reject for non-initiated call", "call_id", p.CallID, "status", call.Status)
		return
	}

	if cch := m.channelForLocked(call, call.CallerID); cch != nil {
		_ = cch.Send(EventCallRejected, CallRejectedPayload{CallID: call.ID, UserID: p.UserID})
	}

	m.removeCallLocked(call, "rejected")
	m.logger.Info("call rejected", "call_id", call.ID, "user_id", p.UserID)
}

// EndCall removes a participant from a call. Remaining bound participants
// are told who left; once fewer than two participants remain the call
// cannot continue and the record is dropped. Unknown call ids are no-ops.
func (m *Manager) EndCall(ch Channel, p CallEndPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls[p.CallID]
	if call == nil {
		m.logger.Debug("end for unknown call", "call_id", p.CallID, "user_id", p.UserID)
		return
	}
	if !call.hasParticipant(p.UserID) {
		m.logger.Debug("end by non-participant", "call_id", p.CallID, "user_id", p.UserID)
		return
	}

	m.leaveLocked(call, p.UserID, ReasonUserEnded)
	m.logger.Info("call left", "call_id", p.CallID, "user_id", p.UserID)
}

// UserReady rebinds a reconnected participant's channel into the call and,
// once every participant has a valid binding, re-broadcasts
// start_signaling so negotiation can restart without a fresh accept.
func (m *Manager) UserReady(ch Channel, p UserReadyPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls[p.CallID]
	if call == nil {
		m.logger.Debug("user_ready for unknown call", "call_id", p.CallID, "user_id", p.UserID)
		return
	}
	if !call.hasParticipant(p.UserID) {
		return
	}

	if dch, ok := m.directory[p.UserID]; ok {
		call.channels[p.UserID] = dch
	}

	for _, pid := range call.Participants {
		pch := call.channels[pid]
		if pch == nil || pch.UserID() != pid {
			return
		}
	}
	for _, pid := range call.Participants {
		_ = call.channels[pid].Send(EventStartSignaling, StartSignalingPayload{CallID: call.ID})
	}
}

// ============================================================================
// Internal transitions
// ============================================================================

// handleNoAnswer fires when the 60s no-answer timer expires. A firing that
// lost the race with accept/reject observes a missing record or a
// non-initiated status and does nothing.
func (m *Manager) handleNoAnswer(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls[callID]
	if call == nil || call.Status != CallInitiated {
		return
	}
	m.logger.Info("call timed out", "call_id", callID)
	m.endInitiatedLocked(call, ReasonNoAnswer, ReasonTimeout)
}

// endInitiatedLocked tears down an initiated call: the caller gets
// call_timeout, every other bound participant gets call_ended, and the
// record goes away.
func (m *Manager) endInitiatedLocked(call *Call, timeoutReason, endedReason string) {
	if cch := m.channelForLocked(call, call.CallerID); cch != nil {
		_ = cch.Send(EventCallTimeout, CallTimeoutPayload{CallID: call.ID, Reason: timeoutReason})
	}
	for _, pid := range call.Participants {
		if pid == call.CallerID {
			continue
		}
		if pch := m.channelForLocked(call, pid); pch != nil {
			_ = pch.Send(EventCallEnded, CallEndedPayload{CallID: call.ID, UserID: SystemUserID, Reason: endedReason})
		}
	}
	m.removeCallLocked(call, endedReason)
}

// leaveLocked removes one participant, notifies whoever is left, and drops
// the record once it can no longer hold a conversation.
func (m *Manager) leaveLocked(call *Call, userID, reason string) {
	call.removeParticipant(userID)
	if pe := m.presence[userID]; pe.CallID == call.ID {
		m.resetPresenceLocked(userID)
	}

	for _, pid := range call.Participants {
		if pch := m.channelForLocked(call, pid); pch != nil {
			_ = pch.Send(EventCallEnded, CallEndedPayload{CallID: call.ID, UserID: userID, Reason: reason})
		}
	}

	if len(call.Participants) < 2 {
		m.removeCallLocked(call, reason)
	}
}

// removeCallLocked is the single terminal path: it cancels the timer,
// resets the presence of every participant still pointing at this call,
// purges mailbox entries scoped to it, and deletes the record atomically
// with those resets.
func (m *Manager) removeCallLocked(call *Call, reason string) {
	m.cancelTimerLocked(call.ID)

	for _, pid := range call.Participants {
		if pe := m.presence[pid]; pe.CallID == call.ID {
			m.resetPresenceLocked(pid)
		}
		m.purgePendingLocked(pid, call.ID)
	}

	delete(m.calls, call.ID)

	m.publish(pubsub.Topics.Calls(), StreamCallEnded, CallStreamEvent{
		CallID:       call.ID,
		CallerID:     call.CallerID,
		Participants: append([]string(nil), call.Participants...),
		CallType:     call.CallType,
		Reason:       reason,
	})
}

func (m *Manager) cancelTimerLocked(callID string) {
	if t, ok := m.timers[callID]; ok {
		t.Stop()
		delete(m.timers, callID)
	}
}

// channelForLocked resolves a participant's channel: the per-call snapshot
// when its binding still matches, the directory otherwise. May return nil.
func (m *Manager) channelForLocked(call *Call, userID string) Channel {
	if ch := call.channels[userID]; ch != nil && ch.UserID() == userID {
		return ch
	}
	return m.directory[userID]
}

func (m *Manager) enqueueLocked(userID, event string, payload any) {
	m.pending[userID] = append(m.pending[userID], pendingEvent{Event: event, Payload: payload})
}

// purgePendingLocked drops a user's queued events scoped to a dead call so
// a late registration does not deliver traffic for it.
func (m *Manager) purgePendingLocked(userID, callID string) {
	queue, ok := m.pending[userID]
	if !ok {
		return
	}
	kept := queue[:0]
	for _, ev := range queue {
		if ev.callID() != callID {
			kept = append(kept, ev)
		}
	}
	if len(kept) == 0 {
		delete(m.pending, userID)
	} else {
		m.pending[userID] = kept
	}
}

// publish pushes a lifecycle event onto the observability stream. Fired
// asynchronously: the stream carries no ordering guarantee and must not
// hold the state lock across backend I/O.
func (m *Manager) publish(topic, eventType string, payload any) {
	if m.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("failed to marshal stream event", "type", eventType, "error", err)
		return
	}
	msg := &pubsub.Message{Topic: topic, Type: eventType, Payload: data}
	go func() {
		if err := m.events.Publish(context.Background(), topic, msg); err != nil {
			m.logger.Error("failed to publish stream event", "type", eventType, "error", err)
		}
	}()
}
