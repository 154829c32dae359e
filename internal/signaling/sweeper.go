package signaling

import "context"

// Run drives the sweeper until the context is cancelled. It runs on a
// fixed tick and applies the two coarse liveness rules: initiated calls
// whose last offer stalled are torn down, and expired ICE candidates are
// trimmed. Decisions are re-evaluated from live state each tick, so a
// decision invalidated by a concurrent handler is simply not taken.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.Ticker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, call := range m.calls {
		if call.Status == CallInitiated && call.OfferAttempts > 0 && now.Sub(call.LastOfferAt) > m.opts.OfferStallTimeout {
			m.logger.Info("call offer stalled", "call_id", call.ID, "offer_attempts", call.OfferAttempts)
			m.endInitiatedLocked(call, ReasonOfferStalled, ReasonOfferStalled)
			continue
		}
		call.trimCandidates(now, m.opts.CandidateTTL)
	}
}
