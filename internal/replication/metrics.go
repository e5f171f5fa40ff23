package replication

import "sync/atomic"

type counters struct {
	receivedMessages atomic.Uint64
	receivedBytes    atomic.Uint64
	sentMessages     atomic.Uint64
	sentBytes        atomic.Uint64

	// mirrored from simulation-goroutine state at the end of each tick
	pendingRegions  atomic.Int64
	streamedRegions atomic.Int64
	knownEntities   atomic.Int64
}

// Metrics is a point-in-time view of one session. Queue depths are the
// backpressure signal: they grow when ticks fall behind.
type Metrics struct {
	ReceivedMessages uint64 `json:"received_messages"`
	ReceivedBytes    uint64 `json:"received_bytes"`
	SentMessages     uint64 `json:"sent_messages"`
	SentBytes        uint64 `json:"sent_bytes"`

	InboundQueue int `json:"inbound_queue"`
	BlockQueue   int `json:"block_queue"`
	ExtraQueue   int `json:"extra_queue"`
	FamilyQueue  int `json:"family_queue"`
	EventQueue   int `json:"event_queue"`

	PendingRegions  int `json:"pending_regions"`
	StreamedRegions int `json:"streamed_regions"`
	KnownEntities   int `json:"known_entities"`
}

// Metrics is safe to call from any goroutine.
func (s *Session) Metrics() Metrics {
	return Metrics{
		ReceivedMessages: s.m.receivedMessages.Load(),
		ReceivedBytes:    s.m.receivedBytes.Load(),
		SentMessages:     s.m.sentMessages.Load(),
		SentBytes:        s.m.sentBytes.Load(),
		InboundQueue:     s.inbound.Len(),
		BlockQueue:       s.blocks.Len(),
		ExtraQueue:       s.extra.Len(),
		FamilyQueue:      s.families.Len(),
		EventQueue:       s.events.Len(),
		PendingRegions:   int(s.m.pendingRegions.Load()),
		StreamedRegions:  int(s.m.streamedRegions.Load()),
		KnownEntities:    int(s.m.knownEntities.Load()),
	}
}

func (s *Session) publishGauges() {
	s.m.pendingRegions.Store(int64(s.streamer.PendingLen()))
	s.m.streamedRegions.Store(int64(s.streamer.StreamedLen()))
	s.m.knownEntities.Store(int64(s.tracker.Len()))
}
