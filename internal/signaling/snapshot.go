package signaling

import "sort"

// Snapshot is the state view served by GET /health
type Snapshot struct {
	ConnectedUsers []string                    `json:"connectedUsers"`
	ActiveCalls    []CallSnapshot              `json:"activeCalls"`
	Presence       map[string]PresenceSnapshot `json:"presence"`
}

// CallSnapshot is one registered call as exposed on /health
type CallSnapshot struct {
	CallID            string     `json:"callId"`
	CallerID          string     `json:"callerId"`
	CallType          string     `json:"callType,omitempty"`
	Status            CallStatus `json:"status"`
	Participants      []string   `json:"participants"`
	BoundParticipants []string   `json:"boundParticipants"`
	OfferAttempts     int        `json:"offerAttempts"`
}

// PresenceSnapshot is one presence entry as exposed on /health
type PresenceSnapshot struct {
	Status PresenceStatus `json:"status"`
	CallID string         `json:"callId,omitempty"`
}

// Snapshot returns a consistent copy of the session state. Slices are
// sorted so the output is stable across calls.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		ConnectedUsers: make([]string, 0, len(m.directory)),
		ActiveCalls:    make([]CallSnapshot, 0, len(m.calls)),
		Presence:       make(map[string]PresenceSnapshot, len(m.presence)),
	}

	for uid := range m.directory {
		snap.ConnectedUsers = append(snap.ConnectedUsers, uid)
	}
	sort.Strings(snap.ConnectedUsers)

	for _, call := range m.calls {
		cs := CallSnapshot{
			CallID:        call.ID,
			CallerID:      call.CallerID,
			CallType:      call.CallType,
			Status:        call.Status,
			Participants:  append([]string(nil), call.Participants...),
			OfferAttempts: call.OfferAttempts,
		}
		cs.BoundParticipants = make([]string, 0, len(call.channels))
		for _, pid := range call.Participants {
			if ch := call.channels[pid]; ch != nil && ch.UserID() == pid {
				cs.BoundParticipants = append(cs.BoundParticipants, pid)
			}
		}
		snap.ActiveCalls = append(snap.ActiveCalls, cs)
	}
	sort.Slice(snap.ActiveCalls, func(i, j int) bool {
		return snap.ActiveCalls[i].CallID < snap.ActiveCalls[j].CallID
	})

	for uid, pe := range m.presence {
		snap.Presence[uid] = PresenceSnapshot{Status: pe.Status, CallID: pe.CallID}
	}

	return snap
}
