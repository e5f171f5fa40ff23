package replication

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/lucasb-eyer/go-colorful"

	"voxelrelay.ai/internal/protocol"
	"voxelrelay.ai/internal/replication/queue"
	"voxelrelay.ai/internal/replication/regions"
	"voxelrelay.ai/internal/replication/relevance"
	"voxelrelay.ai/internal/sim/entity"
	"voxelrelay.ai/internal/sim/mathx"
	"voxelrelay.ai/internal/sim/world"
)

var ErrClosed = errors.New("session closed")

// Entities is the slice of the entity store a session needs.
type Entities interface {
	Lookup(id entity.NetID) (*entity.Entity, bool)
	ControllerOf(e *entity.Entity) string
	HasComponent(e *entity.Entity, t entity.ComponentType) bool
	Component(e *entity.Entity, t entity.ComponentType) (entity.Component, bool)
	Position(e *entity.Entity) (mathx.Vec3f, bool)
	BlockPosition(e *entity.Entity) (mathx.Vec3i, bool)
	SaveComponents(e *entity.Entity, comps ...entity.Component)
	Dispatch(target *entity.Entity, ev entity.Event) error
}

type Codec interface {
	SerializeFull(e *entity.Entity, rule entity.FieldRule) (json.RawMessage, error)
	// SerializeDelta returns nil when nothing in the delta passes rule.
	SerializeDelta(e *entity.Entity, added, dirty, removed []entity.ComponentType, rule entity.FieldRule) (json.RawMessage, error)
	DeserializeDelta(e *entity.Entity, packed json.RawMessage, rule entity.FieldRule) ([]entity.Component, error)
	SerializeEvent(ev entity.Event) (json.RawMessage, error)
	DeserializeEvent(raw json.RawMessage) (entity.Event, error)
}

type EventLibrary interface {
	Metadata(ev entity.Event) (entity.EventMetadata, bool)
}

// Predictor rewinds the world for lag-compensated events.
type Predictor interface {
	LagCompensate(client *entity.Entity, atMs int64)
	RestoreToPresent()
}

type Clock interface {
	GameTimeMs() int64
}

// Transport delivers encoded envelopes. Send must not block on the network.
type Transport interface {
	Send(b []byte) error
	Close() error
}

// Recorder receives a summary of every sent envelope.
type Recorder interface {
	RecordEnvelope(s EnvelopeStats)
}

type EnvelopeStats struct {
	SessionID     string `json:"session_id"`
	Time          int64  `json:"time"`
	Bytes         int    `json:"bytes"`
	Families      int    `json:"families,omitempty"`
	Invalidations int    `json:"invalidations,omitempty"`
	Regions       int    `json:"regions,omitempty"`
	Removes       int    `json:"removes,omitempty"`
	Creates       int    `json:"creates,omitempty"`
	Updates       int    `json:"updates,omitempty"`
	BlockChanges  int    `json:"block_changes,omitempty"`
	ExtraChanges  int    `json:"extra_changes,omitempty"`
	Events        int    `json:"events,omitempty"`
}

type Config struct {
	ID            string
	PreferredName string
	// Color is a #rrggbb hex string; empty picks one from the session id.
	Color        string
	ViewDistance ViewDistance
	Streamer     regions.Config
	Logger       *log.Logger
	// OnClose runs once, after the transport is closed.
	OnClose func(s *Session)
}

type Deps struct {
	Entities  Entities
	Codec     Codec
	Events    EventLibrary
	Predictor Predictor
	Clock     Clock
	Transport Transport
	Recorder  Recorder
}

type blockEdit struct {
	region mathx.Vec3i
	msg    protocol.BlockChange
}

type extraEdit struct {
	region mathx.Vec3i
	msg    protocol.ExtraDataChange
}

// Session replicates world and entity state to one remote client and applies
// what that client sends back.
//
// Tick, SendEvent and the relevance/streaming state run on the simulation
// goroutine. MessageReceived and the world edit callbacks may be called from
// any goroutine; they only touch the queues.
type Session struct {
	id     string
	cfg    Config
	deps   Deps
	logger *log.Logger

	tracker  *relevance.Tracker
	streamer *regions.Streamer[*world.Region]

	character    *entity.Entity
	color        colorful.Color
	viewDistance atomic.Int32

	lastReceived atomic.Int64
	lastSentTime int64

	inbound  queue.Queue[[]byte]
	blocks   queue.Queue[blockEdit]
	extra    queue.Queue[extraEdit]
	families queue.Queue[protocol.BlockFamily]
	events   queue.Queue[protocol.EventMsg]

	m counters

	closeOnce sync.Once
	closed    atomic.Bool
	failed    atomic.Bool
	failErr   atomic.Value // error
}

func New(cfg Config, deps Deps) (*Session, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("session id required")
	}
	if deps.Entities == nil || deps.Codec == nil || deps.Events == nil || deps.Clock == nil || deps.Transport == nil {
		return nil, fmt.Errorf("session %s: missing collaborator", cfg.ID)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[session] ", log.LstdFlags|log.Lmicroseconds)
	}
	s := &Session{
		id:       cfg.ID,
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		tracker:  relevance.NewTracker(),
		streamer: regions.NewStreamer[*world.Region](cfg.Streamer),
	}
	if err := s.SetColor(cfg.Color); err != nil {
		s.color = colorFromID(cfg.ID)
	}
	vd := cfg.ViewDistance
	if vd == 0 {
		vd = ViewModerate
	}
	s.viewDistance.Store(int32(vd))
	return s, nil
}

// colorFromID spreads hues by session id so players are distinguishable.
func colorFromID(id string) colorful.Color {
	var h uint64
	for i := 0; i < len(id); i++ {
		h = h*31 + uint64(id[i])
	}
	return colorful.Hsv(float64(mathx.Hash2(int64(h), 0, 0)%360), 0.6, 0.9)
}

func (s *Session) ID() string { return s.id }

// Relevance exposes the tracker to the simulation goroutine, which reports
// entity relevance and component changes through it.
func (s *Session) Relevance() *relevance.Tracker { return s.tracker }

func (s *Session) SetCharacter(e *entity.Entity) { s.character = e }

func (s *Session) Character() *entity.Entity { return s.character }

// Name is the character's display name, or the name asked for at join.
func (s *Session) Name() string {
	if s.character.Exists() {
		if c, ok := s.deps.Entities.Component(s.character, entity.TypeDisplayName); ok {
			if n := c.(*entity.DisplayName).Name; n != "" {
				return n
			}
		}
	}
	return s.cfg.PreferredName
}

// Color is the character's color, or the session color.
func (s *Session) Color() string {
	if s.character.Exists() {
		if c, ok := s.deps.Entities.Component(s.character, entity.TypeColor); ok {
			if col, err := colorful.Hex(c.(*entity.Color).Hex); err == nil {
				return col.Hex()
			}
		}
	}
	return s.color.Hex()
}

func (s *Session) SetColor(hex string) error {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fmt.Errorf("color %q: %w", hex, err)
	}
	s.color = c
	return nil
}

func (s *Session) ViewDistance() ViewDistance { return ViewDistance(s.viewDistance.Load()) }

func (s *Session) SetViewDistance(v ViewDistance) { s.viewDistance.Store(int32(v)) }

// LastReceivedTime is the highest game time seen from the client.
func (s *Session) LastReceivedTime() int64 { return s.lastReceived.Load() }

// MessageReceived queues one raw envelope from the client.
func (s *Session) MessageReceived(raw []byte) {
	if s.closed.Load() {
		return
	}
	s.m.receivedMessages.Add(1)
	s.m.receivedBytes.Add(uint64(len(raw)))
	s.inbound.Push(raw)
}

// Tick sends one envelope when netTick is set, then applies everything the
// client sent since the previous tick.
func (s *Session) Tick(netTick bool, bandwidth float64) {
	if s.closed.Load() {
		return
	}
	if netTick {
		s.send(bandwidth)
	}
	s.processReceived()
	s.publishGauges()
}

// Failed reports a transport failure; the manager drops failed sessions.
func (s *Session) Failed() bool { return s.failed.Load() }

func (s *Session) Err() error {
	if v := s.failErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (s *Session) fail(err error) {
	if s.failed.CompareAndSwap(false, true) {
		s.failErr.Store(err)
		s.logger.Printf("ERROR session %s transport: %v", s.id, err)
	}
	s.Close()
}

func (s *Session) Closed() bool { return s.closed.Load() }

// Close is idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.deps.Transport.Close()
		if s.cfg.OnClose != nil {
			s.cfg.OnClose(s)
		}
	})
	return err
}
