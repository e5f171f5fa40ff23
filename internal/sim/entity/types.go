package entity

import "errors"

// NetID identifies an entity for replication. Zero is never assigned.
type NetID uint32

// ComponentType is the stable tag of a component schema.
type ComponentType string

type Component interface {
	ComponentType() ComponentType
}

type Event interface {
	EventName() string
}

// NetworkEventType says which way an event may travel.
type NetworkEventType int

const (
	NetworkEventNone NetworkEventType = iota
	// NetworkEventServer events are sent by a client to the server.
	NetworkEventServer
	// NetworkEventOwner events are sent by the server to the owning client.
	NetworkEventOwner
	// NetworkEventBroadcast events are sent by the server to every client that knows the target.
	NetworkEventBroadcast
)

func (t NetworkEventType) String() string {
	switch t {
	case NetworkEventServer:
		return "SERVER"
	case NetworkEventOwner:
		return "OWNER"
	case NetworkEventBroadcast:
		return "BROADCAST"
	default:
		return "NONE"
	}
}

type EventMetadata struct {
	Name           string
	Network        NetworkEventType
	LagCompensated bool
}

// FieldRule selects which component fields cross the wire.
//
// Outbound (Inbound=false): "always" fields are always included, "owner" fields
// only when Owner, "initial" fields only when Initial. "client" fields go to
// everyone else on every send but to the owner only on creation, since the
// owner is the one producing them.
// Inbound: only "client" fields, and only when Owner.
type FieldRule struct {
	Owner   bool
	Initial bool
	Inbound bool
}

// Field replication kinds, set with the `net:"..."` struct tag.
const (
	FieldAlways  = "always"
	FieldOwner   = "owner"
	FieldInitial = "initial"
	FieldClient  = "client"
	FieldNever   = "-"
)

// Allows reports whether a field of the given kind passes the rule.
func (r FieldRule) Allows(kind string) bool {
	if kind == "" {
		kind = FieldAlways
	}
	if r.Inbound {
		return r.Owner && kind == FieldClient
	}
	switch kind {
	case FieldAlways:
		return true
	case FieldOwner:
		return r.Owner
	case FieldInitial:
		return r.Initial
	case FieldClient:
		return !r.Owner || r.Initial
	default:
		return false
	}
}

var (
	ErrNotFound      = errors.New("entity not found")
	ErrNoSuchHandler = errors.New("no handler for event")
)
