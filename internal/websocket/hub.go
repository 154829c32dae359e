package websocket

import (
	"encoding/json"
	"log/slog"
	"runtime/debug"

	"github.com/rajeshbanoth/backend-call/internal/signaling"
)

// Hub dispatches inbound WebSocket messages to the session manager. The
// roster itself lives in the manager's user directory; the hub is a thin
// decode-and-dispatch layer.
type Hub struct {
	manager *signaling.Manager
	logger  *slog.Logger
}

// NewHub creates a new Hub
func NewHub(manager *signaling.Manager, logger *slog.Logger) *Hub {
	return &Hub{
		manager: manager,
		logger:  logger,
	}
}

// HandleMessage processes an incoming WebSocket message. Panics from a
// handler are recovered and logged here; the socket stays open.
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("handler panic recovered",
				"event", msg.Type,
				"user_id", client.UserID(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	switch msg.Type {
	case signaling.EventRegister:
		var p signaling.RegisterPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.manager.Register(client, p)

	case signaling.EventUserStatus:
		var p signaling.UserStatusPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.manager.UserStatus(client, p)

	case signaling.EventCallInitiate:
		var p signaling.CallInitiatePayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.manager.InitiateCall(client, p)

	case signaling.EventCallAccept:
		var p signaling.CallAcceptPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.manager.AcceptCall(client, p)

	case signaling.EventCallReject:
		var p signaling.CallRejectPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.manager.RejectCall(client, p)

	case signaling.EventCallEnd:
		var p signaling.CallEndPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.manager.EndCall(client, p)

	case signaling.EventUserReady:
		var p signaling.UserReadyPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.manager.UserReady(client, p)

	case signaling.EventWebRTCOffer:
		var p signaling.SignalPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.manager.Offer(client, p)

	case signaling.EventWebRTCAnswer:
		var p signaling.SignalPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.manager.Answer(client, p)

	case signaling.EventICECandidate:
		var p signaling.SignalPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.manager.Candidate(client, p)

	default:
		client.sendError("unknown_event", "Unknown event type: "+msg.Type)
	}
}

// HandleDisconnect tells the session manager a channel closed
func (h *Hub) HandleDisconnect(client *Client) {
	h.manager.Disconnect(client)
}

func (h *Hub) decode(client *Client, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		client.sendError("invalid_payload", "Malformed event payload")
		return false
	}
	return true
}
