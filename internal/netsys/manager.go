package netsys

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"voxelrelay.ai/internal/replication"
	"voxelrelay.ai/internal/replication/netcodec"
	"voxelrelay.ai/internal/replication/queue"
	"voxelrelay.ai/internal/replication/regions"
	"voxelrelay.ai/internal/sim/entity"
	"voxelrelay.ai/internal/sim/prediction"
	"voxelrelay.ai/internal/sim/tuning"
	"voxelrelay.ai/internal/sim/world"
)

// SessionRecord summarizes a finished session.
type SessionRecord struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Color          string `json:"color"`
	CharacterNetID uint32 `json:"character_net_id"`
	JoinedMs       int64  `json:"joined_ms"`
	LeftMs         int64  `json:"left_ms"`
	Failed         bool   `json:"failed"`
	SentMessages   uint64 `json:"sent_messages"`
	SentBytes      uint64 `json:"sent_bytes"`
	RecvMessages   uint64 `json:"recv_messages"`
	RecvBytes      uint64 `json:"recv_bytes"`
}

type SessionIndex interface {
	RecordSession(r SessionRecord)
}

type Config struct {
	Tuning tuning.Tuning
	Logger *log.Logger

	// Optional sinks.
	Recorder replication.Recorder
	Index    SessionIndex
}

type JoinRequest struct {
	Name         string
	Color        string
	ViewDistance replication.ViewDistance
	Transport    replication.Transport

	resp chan joinResponse
}

type joinResponse struct {
	session *replication.Session
	err     error
}

// Manager owns every client session and the simulation they observe.
// World, entity and session state is only touched from the Run goroutine.
type Manager struct {
	cfg    tuning.Tuning
	logger *log.Logger

	world    *world.World
	store    *entity.Store
	lib      *netcodec.Library
	codec    *netcodec.Codec
	rewinder *prediction.Rewinder

	recorder replication.Recorder
	index    SessionIndex

	sessions map[string]*member

	tick        atomic.Uint64
	nowMs       atomic.Int64
	nextSession atomic.Uint64

	join     chan JoinRequest
	snaps    chan snapReq
	families chan familyReq
	leaves   queue.Queue[string]
	stop     chan struct{}
	stopMu   sync.Once

	metrics atomic.Value // Metrics
}

type member struct {
	session  *replication.Session
	joinedMs int64
}

func New(cfg Config) (*Manager, error) {
	t := cfg.Tuning
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("netsys: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[netsys] ", log.LstdFlags|log.Lmicroseconds)
	}
	store := entity.NewStore()
	lib := netcodec.NewLibrary()
	m := &Manager{
		cfg:    t,
		logger: logger,
		world: world.New(world.Config{
			Gen:        world.DefaultGen(t.Seed),
			MinRegionY: t.World.MinRegionY,
			MaxRegionY: t.World.MaxRegionY,
			Layers:     t.World.Layers,
		}),
		store:    store,
		lib:      lib,
		codec:    netcodec.New(store, lib),
		rewinder: prediction.NewRewinder(store, t.HistorySamples),
		recorder: cfg.Recorder,
		index:    cfg.Index,
		sessions: map[string]*member{},
		join:     make(chan JoinRequest, 16),
		snaps:    make(chan snapReq),
		families: make(chan familyReq),
		stop:     make(chan struct{}),
	}
	store.AddListener(hooks{m})
	m.subscribeRules()
	m.metrics.Store(Metrics{})
	return m, nil
}

func (m *Manager) World() *world.World        { return m.world }
func (m *Manager) Store() *entity.Store       { return m.store }
func (m *Manager) Tuning() tuning.Tuning      { return m.cfg }
func (m *Manager) Tick() uint64               { return m.tick.Load() }
func (m *Manager) GameTimeMs() int64          { return m.nowMs.Load() }
func (m *Manager) Library() *netcodec.Library { return m.lib }

func (m *Manager) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(m.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()
		case <-m.stop:
			m.shutdown()
			return nil
		case req := <-m.join:
			s, err := m.handleJoin(req)
			req.resp <- joinResponse{session: s, err: err}
		case req := <-m.snaps:
			req.resp <- m.Capture()
		case req := <-m.families:
			req.resp <- m.world.RegisterFamily(req.family)
		case <-ticker.C:
			m.step()
		}
	}
}

func (m *Manager) Stop() { m.stopMu.Do(func() { close(m.stop) }) }

// Join spawns a character for a new client and returns its session once the
// simulation goroutine has set it up.
func (m *Manager) Join(ctx context.Context, req JoinRequest) (*replication.Session, error) {
	if req.Transport == nil {
		return nil, fmt.Errorf("join: transport required")
	}
	req.resp = make(chan joinResponse, 1)
	select {
	case m.join <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.stop:
		return nil, replication.ErrClosed
	}
	select {
	case r := <-req.resp:
		return r.session, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Leave drops a session on the next tick. Safe from any goroutine.
func (m *Manager) Leave(id string) {
	m.leaves.Push(id)
}

// StepOnce advances one tick synchronously. It must not be mixed with Run.
func (m *Manager) StepOnce() { m.step() }

// BandwidthPerClient splits the configured bandwidth evenly.
func (m *Manager) BandwidthPerClient() float64 {
	n := len(m.sessions)
	if n < 1 {
		n = 1
	}
	return m.cfg.Streaming.TotalBandwidth / float64(n)
}

func (m *Manager) newSessionID() string {
	n := m.nextSession.Add(1)
	return fmt.Sprintf("S%06d", n)
}

func (m *Manager) handleJoin(req JoinRequest) (*replication.Session, error) {
	id := m.newSessionID()
	vd := req.ViewDistance
	if vd == 0 {
		vd = replication.ViewModerate
	}
	s, err := replication.New(replication.Config{
		ID:            id,
		PreferredName: req.Name,
		Color:         req.Color,
		ViewDistance:  vd,
		Streamer: regions.Config{
			SendRate:     m.cfg.Streaming.RegionSendRate,
			TickDuration: m.cfg.TickDurationSec(),
		},
		Logger: m.logger,
	}, replication.Deps{
		Entities:  m.store,
		Codec:     m.codec,
		Events:    m.lib,
		Predictor: m.rewinder,
		Clock:     m,
		Transport: req.Transport,
		Recorder:  m.recorder,
	})
	if err != nil {
		return nil, err
	}
	name := req.Name
	if name == "" {
		name = "player-" + id
	}
	char := m.store.Create(id,
		&entity.Location{Pos: m.spawnPos(len(m.sessions))},
		&entity.Character{Session: id},
		&entity.DisplayName{Name: name},
		&entity.Color{Hex: s.Color()},
		&entity.Health{Current: 20, Max: 20, Regen: 1},
		&entity.Network{},
	)
	s.SetCharacter(char)
	m.sessions[id] = &member{session: s, joinedMs: m.nowMs.Load()}
	m.world.RegisterListener(s)
	for _, f := range m.world.Families() {
		s.OnFamilyRegistered(f)
	}
	m.logger.Printf("session %s joined as %q (net id %d)", id, name, char.NetID())
	return s, nil
}

func (m *Manager) removeSession(id string) {
	mem := m.sessions[id]
	if mem == nil {
		return
	}
	s := mem.session
	delete(m.sessions, id)
	m.world.UnregisterListener(s)
	char := s.Character()
	var netID uint32
	if char.Exists() {
		netID = uint32(char.NetID())
	}
	name, color := s.Name(), s.Color()
	m.store.Destroy(char)
	_ = s.Close()

	if m.index != nil {
		mt := s.Metrics()
		m.index.RecordSession(SessionRecord{
			ID:             id,
			Name:           name,
			Color:          color,
			CharacterNetID: netID,
			JoinedMs:       mem.joinedMs,
			LeftMs:         m.nowMs.Load(),
			Failed:         s.Failed(),
			SentMessages:   mt.SentMessages,
			SentBytes:      mt.SentBytes,
			RecvMessages:   mt.ReceivedMessages,
			RecvBytes:      mt.ReceivedBytes,
		})
	}
	if err := s.Err(); err != nil {
		m.logger.Printf("WARN session %s left after failure: %v", id, err)
	} else {
		m.logger.Printf("session %s left", id)
	}
}

func (m *Manager) shutdown() {
	for _, id := range m.sortedIDs() {
		m.removeSession(id)
	}
}

func (m *Manager) sortedIDs() []string {
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) step() {
	tick := m.tick.Add(1)
	now := int64(tick) * 1000 / int64(m.cfg.TickRateHz)
	m.nowMs.Store(now)

	for _, id := range m.leaves.Drain() {
		m.removeSession(id)
	}
	ids := m.sortedIDs()
	for _, id := range ids {
		if m.sessions[id].session.Closed() {
			m.removeSession(id)
		}
	}
	ids = m.sortedIDs()

	m.rewinder.Record(now)
	for _, id := range ids {
		m.updateRegionRelevance(m.sessions[id].session)
	}
	for _, id := range ids {
		m.updateEntityRelevance(m.sessions[id].session)
	}

	netTick := tick%uint64(m.cfg.NetTickEvery) == 0
	bw := m.BandwidthPerClient()
	for _, id := range ids {
		m.sessions[id].session.Tick(netTick, bw)
	}
	m.publishMetrics(tick, now)
}
