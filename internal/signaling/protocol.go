package signaling

import "encoding/json"

// Event types for client -> server
const (
	EventRegister     = "register"
	EventUserStatus   = "user_status"
	EventCallInitiate = "call_initiate"
	EventCallAccept   = "call_accept"
	EventCallReject   = "call_reject"
	EventCallEnd      = "call_end"
	EventUserReady    = "user_ready"
	EventWebRTCOffer  = "webrtc_offer"
	EventWebRTCAnswer = "webrtc_answer"
	EventICECandidate = "ice_candidate"
)

// Event types for server -> client. Offer, answer, and candidate events are
// forwarded under the same names they arrived with.
const (
	EventRegistered      = "registered"
	EventError           = "error"
	EventForceDisconnect = "force_disconnect"
	EventIncomingCall    = "incoming_call"
	EventCallRinging     = "call_ringing"
	EventCallBusy        = "call_busy"
	EventCallAccepted    = "call_accepted"
	EventCallRejected    = "call_rejected"
	EventCallTimeout     = "call_timeout"
	EventCallEnded       = "call_ended"
	EventStartSignaling  = "start_signaling"
)

// ============================================================================
// Client -> Server Payloads
// ============================================================================

// RegisterPayload binds a user id to the delivering channel
type RegisterPayload struct {
	UserID string `json:"userId"`
}

// UserStatusPayload is a client-driven presence update
type UserStatusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// CallInitiatePayload starts a call. It is echoed verbatim to the receiver
// as the incoming_call event.
type CallInitiatePayload struct {
	CallID      string          `json:"callId"`
	CallerID    string          `json:"callerId"`
	ReceiverIDs []string        `json:"receiverIds"`
	CallType    string          `json:"callType,omitempty"`
	ExtraMeta   json.RawMessage `json:"extraMeta,omitempty"`
}

// CallAcceptPayload accepts a ringing call
type CallAcceptPayload struct {
	CallID     string `json:"callId"`
	ReceiverID string `json:"receiverId"`
}

// CallRejectPayload declines a ringing call
type CallRejectPayload struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
}

// CallEndPayload leaves an established call
type CallEndPayload struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
}

// UserReadyPayload re-arms signaling after a reconnect
type UserReadyPayload struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
}

// SignalPayload carries an SDP offer/answer or an ICE candidate between
// participants. SDP and Candidate are opaque; the router never inspects
// them. On forward the To field is stripped and everything else is passed
// through byte-for-byte.
type SignalPayload struct {
	CallID    string          `json:"callId"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// forward returns a copy with the routing target removed
func (p SignalPayload) forward() SignalPayload {
	p.To = ""
	return p
}

// ============================================================================
// Server -> Client Payloads
// ============================================================================

// RegisteredPayload confirms a registration
type RegisteredPayload struct {
	Success bool `json:"success"`
}

// ErrorPayload for error responses
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ForceDisconnectPayload tells a superseded channel to go away
type ForceDisconnectPayload struct {
	Message string `json:"message"`
}

// CallRingingPayload tells the caller the receiver is being alerted
type CallRingingPayload struct {
	CallID     string `json:"callId"`
	ReceiverID string `json:"receiverId"`
}

// CallBusyPayload tells the caller the receiver is in another call
type CallBusyPayload struct {
	CallID     string `json:"callId"`
	ReceiverID string `json:"receiverId"`
}

// CallAcceptedPayload tells participants who picked up
type CallAcceptedPayload struct {
	CallID     string `json:"callId"`
	ReceiverID string `json:"receiverId"`
}

// CallRejectedPayload tells the caller who declined
type CallRejectedPayload struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
}

// CallTimeoutPayload tells the caller the call was torn down by a timeout
type CallTimeoutPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

// CallEndedPayload tells remaining participants a call is over for them
type CallEndedPayload struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// StartSignalingPayload tells bound participants to begin WebRTC negotiation
type StartSignalingPayload struct {
	CallID string `json:"callId"`
}

// Reasons used in call_ended / call_timeout events
const (
	ReasonUserEnded    = "User ended the call"
	ReasonDisconnected = "User disconnected"
	ReasonTimeout      = "Timeout"
	ReasonNoAnswer     = "No answer"
	ReasonOfferStalled = "No answer from receiver"
)

// SystemUserID is the user id stamped on events emitted by the server
// itself rather than a participant.
const SystemUserID = "system"
