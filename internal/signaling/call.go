package signaling

import (
	"encoding/json"
	"time"
)

// PresenceStatus is the server's view of a user's availability. It is a
// closed enumeration; free-form writes are rejected at the boundary.
type PresenceStatus string

const (
	PresenceOffline   PresenceStatus = "offline"
	PresenceAvailable PresenceStatus = "available"
	PresenceRinging   PresenceStatus = "ringing"
	PresenceBusy      PresenceStatus = "busy"
	PresenceInCall    PresenceStatus = "in-call"
)

// ParsePresenceStatus validates a client-supplied status string
func ParsePresenceStatus(s string) (PresenceStatus, bool) {
	switch PresenceStatus(s) {
	case PresenceOffline, PresenceAvailable, PresenceRinging, PresenceBusy, PresenceInCall:
		return PresenceStatus(s), true
	}
	return "", false
}

// presenceEntry pairs a status with the call it refers to. CallID is set
// only for ringing, busy, and in-call.
type presenceEntry struct {
	Status PresenceStatus
	CallID string
}

// CallStatus is the lifecycle state of a registered call. Terminated calls
// are removed from the registry rather than stored.
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallActive    CallStatus = "active"
)

// BufferedCandidate is an ICE candidate retained for observability and
// retransmission. Entries expire after the candidate TTL.
type BufferedCandidate struct {
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
	At        time.Time       `json:"ts"`
}

// Call is one registered call. All fields are guarded by the Manager's
// mutex; the struct itself carries no locking.
type Call struct {
	ID          string
	CallerID    string
	ReceiverIDs []string
	CallType    string
	ExtraMeta   json.RawMessage

	// Participants is the ordered set of user ids currently bound to the
	// call. The caller comes first.
	Participants []string

	// channels caches each participant's transport channel as captured at
	// join time. It can lag the directory; lookups validate the binding and
	// fall back to the directory when the snapshot is missing or stale.
	channels map[string]Channel

	Status CallStatus

	OfferAttempts int
	LastOfferAt   time.Time

	iceBuffers map[string][]BufferedCandidate

	CreatedAt time.Time
}

func newCall(p CallInitiatePayload, now time.Time) *Call {
	participants := make([]string, 0, 1+len(p.ReceiverIDs))
	participants = append(participants, p.CallerID)
	participants = append(participants, p.ReceiverIDs...)

	return &Call{
		ID:           p.CallID,
		CallerID:     p.CallerID,
		ReceiverIDs:  append([]string(nil), p.ReceiverIDs...),
		CallType:     p.CallType,
		ExtraMeta:    p.ExtraMeta,
		Participants: participants,
		channels:     make(map[string]Channel),
		Status:       CallInitiated,
		iceBuffers:   make(map[string][]BufferedCandidate),
		CreatedAt:    now,
	}
}

func (c *Call) hasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (c *Call) removeParticipant(userID string) {
	for i, p := range c.Participants {
		if p == userID {
			c.Participants = append(c.Participants[:i], c.Participants[i+1:]...)
			break
		}
	}
	delete(c.channels, userID)
}

// bufferCandidate appends to the recipient's ICE buffer
func (c *Call) bufferCandidate(to, from string, candidate json.RawMessage, now time.Time) {
	c.iceBuffers[to] = append(c.iceBuffers[to], BufferedCandidate{
		From:      from,
		Candidate: candidate,
		At:        now,
	})
}

// trimCandidates drops buffered candidates older than ttl
func (c *Call) trimCandidates(now time.Time, ttl time.Duration) {
	for uid, buf := range c.iceBuffers {
		kept := buf[:0]
		for _, bc := range buf {
			if now.Sub(bc.At) <= ttl {
				kept = append(kept, bc)
			}
		}
		if len(kept) == 0 {
			delete(c.iceBuffers, uid)
		} else {
			c.iceBuffers[uid] = kept
		}
	}
}

// pendingEvent is one mailbox entry for a user without a live channel
type pendingEvent struct {
	Event   string
	Payload any
}

// callID returns the call the entry is scoped to, or "" for payloads that
// carry no call id.
func (e pendingEvent) callID() string {
	switch p := e.Payload.(type) {
	case CallInitiatePayload:
		return p.CallID
	case SignalPayload:
		return p.CallID
	}
	return ""
}
