package netsys

import "voxelrelay.ai/internal/replication"

type SessionMetrics struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	replication.Metrics
}

type Metrics struct {
	Tick       uint64           `json:"tick"`
	GameTimeMs int64            `json:"game_time_ms"`
	Entities   int              `json:"entities"`
	Bandwidth  float64          `json:"bandwidth_per_client"`
	Sessions   []SessionMetrics `json:"sessions"`
}

// Metrics returns the snapshot published at the end of the last tick.
func (m *Manager) Metrics() Metrics {
	return m.metrics.Load().(Metrics)
}

func (m *Manager) publishMetrics(tick uint64, now int64) {
	out := Metrics{
		Tick:       tick,
		GameTimeMs: now,
		Entities:   m.store.Len(),
		Bandwidth:  m.BandwidthPerClient(),
	}
	for _, id := range m.sortedIDs() {
		s := m.sessions[id].session
		out.Sessions = append(out.Sessions, SessionMetrics{ID: id, Name: s.Name(), Metrics: s.Metrics()})
	}
	m.metrics.Store(out)
}
