package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Name            string            `json:"name"`
	Color           string            `json:"color,omitempty"`
	ViewDistance    string            `json:"view_distance,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	// Zstd asks for binary zstd-compressed frames in both directions.
	Zstd     bool `json:"zstd,omitempty"`
	MaxQueue int  `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	CharacterNetID  uint32      `json:"character_net_id"`
	Color           string      `json:"color"`
	WorldParams     WorldParams `json:"world_params"`
	Zstd            bool        `json:"zstd,omitempty"`
}

type WorldParams struct {
	TickRateHz    int    `json:"tick_rate_hz"`
	NetTickRateHz int    `json:"net_tick_rate_hz"`
	RegionSize    [3]int `json:"region_size"`
	Seed          int64  `json:"seed"`
}

// ERROR (server -> client), sent before closing a connection.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
