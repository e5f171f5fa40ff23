package entity

import "voxelrelay.ai/internal/sim/mathx"

const (
	TypeLocation    ComponentType = "Location"
	TypeBlock       ComponentType = "Block"
	TypeNetwork     ComponentType = "Network"
	TypeDisplayName ComponentType = "DisplayName"
	TypeColor       ComponentType = "Color"
	TypeHealth      ComponentType = "Health"
	TypeCharacter   ComponentType = "Character"
)

// Location is a world-space position. Yaw is driven by the controlling client.
type Location struct {
	Pos mathx.Vec3f `json:"pos"`
	Yaw float64     `json:"yaw" net:"client"`
}

func (*Location) ComponentType() ComponentType { return TypeLocation }

// Block marks an entity that occupies a fixed world cell.
type Block struct {
	Pos mathx.Vec3i `json:"pos"`
}

func (*Block) ComponentType() ComponentType { return TypeBlock }

type Network struct {
	ID             NetID `json:"id"`
	AlwaysRelevant bool  `json:"always_relevant" net:"-"`
}

func (*Network) ComponentType() ComponentType { return TypeNetwork }

type DisplayName struct {
	Name string `json:"name"`
}

func (*DisplayName) ComponentType() ComponentType { return TypeDisplayName }

type Color struct {
	Hex string `json:"hex"`
}

func (*Color) ComponentType() ComponentType { return TypeColor }

type Health struct {
	Current int `json:"current"`
	Max     int `json:"max"`
	// Regen is only interesting to the owner.
	Regen int `json:"regen" net:"owner"`
}

func (*Health) ComponentType() ComponentType { return TypeHealth }

type Character struct {
	Session string `json:"session" net:"initial"`
}

func (*Character) ComponentType() ComponentType { return TypeCharacter }
