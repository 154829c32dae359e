package signaling

// Channel is the transport-side handle for one connected client. The
// WebSocket layer implements it; tests substitute a recording fake.
//
// Send must never block: implementations buffer and drop on overflow. A
// dropped event is recovered by the client via user_ready or a reconnect
// followed by a pending-queue drain.
type Channel interface {
	// ID is the transport-assigned connection id, distinct from the user id.
	ID() string

	// UserID returns the bound user id, or "" before registration and after
	// the binding has been revoked by a superseding registration.
	UserID() string

	// Bind sets (or clears, with "") the bound user id.
	Bind(userID string)

	// Send emits a named event with a payload. Non-blocking.
	Send(event string, payload any) error

	// Close tears down the underlying transport connection.
	Close() error
}
