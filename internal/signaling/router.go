package signaling

// Offer relays an SDP offer and bumps the call's offer accounting. A
// missing call record is not an error: the payload is still routed (or
// queued) since the call may be about to be created or resumed.
func (m *Manager) Offer(ch Channel, p SignalPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if call := m.calls[p.CallID]; call != nil {
		call.OfferAttempts++
		call.LastOfferAt = m.clock.Now()
	}
	m.routeLocked(EventWebRTCOffer, p)
}

// Answer relays an SDP answer and clears the offer-stall accounting
func (m *Manager) Answer(ch Channel, p SignalPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if call := m.calls[p.CallID]; call != nil {
		call.OfferAttempts = 0
	}
	m.routeLocked(EventWebRTCAnswer, p)
}

// Candidate relays an ICE candidate. When the call record exists the
// candidate is also buffered for the recipient; buffering is best-effort
// and forwarding proceeds regardless.
func (m *Manager) Candidate(ch Channel, p SignalPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if call := m.calls[p.CallID]; call != nil && len(p.Candidate) > 0 {
		call.bufferCandidate(p.To, p.From, p.Candidate, m.clock.Now())
	}
	m.routeLocked(EventICECandidate, p)
}

// routeLocked is the common forwarding rule: drop loopbacks, resolve the
// target through the per-call snapshot with a directory fallback, strip
// the routing target from the payload, and queue for offline targets. The
// SDP/ICE bytes pass through untouched.
func (m *Manager) routeLocked(event string, p SignalPayload) {
	if p.From == p.To {
		m.logger.Debug("dropping loopback signal", "event", event, "call_id", p.CallID, "from", p.From)
		return
	}

	var target Channel
	if call := m.calls[p.CallID]; call != nil {
		target = m.channelForLocked(call, p.To)
	} else {
		target = m.directory[p.To]
	}

	if target == nil {
		m.enqueueLocked(p.To, event, p)
		m.logger.Debug("queued signal for offline user", "event", event, "call_id", p.CallID, "to", p.To)
		return
	}
	_ = target.Send(event, p.forward())
}
