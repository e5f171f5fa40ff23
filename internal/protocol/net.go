package protocol

import "encoding/json"

// NetMessage is the per-tick replication envelope in both directions. Server
// envelopes list their sections in the order below; clients send only
// time, update_entity and event.
type NetMessage struct {
	Type string `json:"type"`
	// Time is the sender's game time in milliseconds.
	Time int64 `json:"time"`

	BlockFamilies     []BlockFamily     `json:"block_family_registered,omitempty"`
	InvalidateRegions [][3]int          `json:"invalidate_region,omitempty"`
	Regions           []RegionInfo      `json:"region_info,omitempty"`
	RemoveEntities    []uint32          `json:"remove_entity,omitempty"`
	CreateEntities    []CreateEntity    `json:"create_entity,omitempty"`
	UpdateEntities    []UpdateEntity    `json:"update_entity,omitempty"`
	BlockChanges      []BlockChange     `json:"block_change,omitempty"`
	ExtraDataChanges  []ExtraDataChange `json:"extra_data_change,omitempty"`
	Events            []EventMsg        `json:"event,omitempty"`
}

type BlockFamily struct {
	Name string   `json:"name"`
	IDs  []uint16 `json:"ids"`
}

// RegionInfo carries one region. Blocks and each layer are
// base64(zstd(uvarint (id, run) pairs)), x fastest, then z, then y.
type RegionInfo struct {
	Pos    [3]int   `json:"pos"`
	Size   [3]int   `json:"size"`
	Blocks string   `json:"blocks"`
	Layers []string `json:"layers,omitempty"`
}

type CreateEntity struct {
	NetID    uint32          `json:"net_id"`
	Entity   json.RawMessage `json:"entity"`
	BlockPos *[3]int         `json:"block_pos,omitempty"`
}

type UpdateEntity struct {
	NetID  uint32          `json:"net_id"`
	Entity json.RawMessage `json:"entity"`
}

type BlockChange struct {
	Pos   [3]int `json:"pos"`
	Block uint16 `json:"block"`
}

type ExtraDataChange struct {
	Layer int    `json:"layer"`
	Pos   [3]int `json:"pos"`
	Value uint8  `json:"value"`
}

// EventMsg targets one network entity. Event is {"Type": name, ...fields}.
type EventMsg struct {
	Target uint32          `json:"target"`
	Event  json.RawMessage `json:"event"`
}

// Empty reports whether the envelope carries nothing beyond its time stamp.
func (m *NetMessage) Empty() bool {
	return len(m.BlockFamilies) == 0 && len(m.InvalidateRegions) == 0 && len(m.Regions) == 0 &&
		len(m.RemoveEntities) == 0 && len(m.CreateEntities) == 0 && len(m.UpdateEntities) == 0 &&
		len(m.BlockChanges) == 0 && len(m.ExtraDataChanges) == 0 && len(m.Events) == 0
}
