package signaling

// Lifecycle stream event types, published to the pubsub topics for
// observers (monitoring, future cross-instance fan-out). The stream is
// best-effort and unordered; nothing in the signaling path depends on it.
const (
	StreamCallCreated     = "call.created"
	StreamCallAnswered    = "call.answered"
	StreamCallEnded       = "call.ended"
	StreamPresenceChanged = "presence.changed"
)

// CallStreamEvent describes a call lifecycle transition
type CallStreamEvent struct {
	CallID       string   `json:"callId"`
	CallerID     string   `json:"callerId"`
	Participants []string `json:"participants"`
	CallType     string   `json:"callType,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// PresenceStreamEvent describes a presence transition
type PresenceStreamEvent struct {
	UserID string         `json:"userId"`
	Status PresenceStatus `json:"status"`
	CallID string         `json:"callId,omitempty"`
}
