package observerproto

import "voxelrelay.ai/internal/protocol"

// Version is the observer API version (separate from the client WS protocol).
const Version = "0.2"

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string                 `json:"protocol_version"`
	Tick            uint64                 `json:"tick"`
	WorldParams     protocol.WorldParams   `json:"world_params"`
	BlockPalette    []string               `json:"block_palette"`
	Families        []protocol.BlockFamily `json:"block_families"`
}

// HTTP response for GET /admin/v1/observer/sessions.
type SessionsResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	GameTimeMs      int64         `json:"game_time_ms"`
	Entities        int           `json:"entities"`
	Sessions        []SessionInfo `json:"sessions"`
}

type SessionInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SentMessages uint64 `json:"sent_messages"`
	SentBytes    uint64 `json:"sent_bytes"`
	RecvMessages uint64 `json:"recv_messages"`
	RecvBytes    uint64 `json:"recv_bytes"`

	// Backlog is the sum of every per-session queue depth.
	Backlog         int `json:"backlog"`
	PendingRegions  int `json:"pending_regions"`
	StreamedRegions int `json:"streamed_regions"`
	KnownEntities   int `json:"known_entities"`
}

// HTTP response for POST /admin/v1/snapshot.
type SnapshotResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Regions         int    `json:"regions"`
	Path            string `json:"path"`
}

// HTTP response for GET and POST /admin/v1/families.
type FamiliesResponse struct {
	ProtocolVersion string                 `json:"protocol_version"`
	Families        []protocol.BlockFamily `json:"block_families"`
}
