package entity

// AttackEvent is sent by a client when its character swings at Target.
// Hit checks run against the world as the client saw it.
type AttackEvent struct {
	Target NetID `json:"target"`
	Damage int   `json:"damage"`
}

func (*AttackEvent) EventName() string { return "AttackEvent" }

type SayEvent struct {
	Text string `json:"text"`
}

func (*SayEvent) EventName() string { return "SayEvent" }

// DamagedEvent tells the owner its character took damage.
type DamagedEvent struct {
	Amount     int   `json:"amount"`
	Instigator NetID `json:"instigator,omitempty"`
}

func (*DamagedEvent) EventName() string { return "DamagedEvent" }

type ChatMessageEvent struct {
	From string `json:"from"`
	Text string `json:"text"`
}

func (*ChatMessageEvent) EventName() string { return "ChatMessageEvent" }

// PlaceBlockEvent puts Block into an empty cell within reach of the sender.
// Meta goes to attribute layer 0 when the world has one.
type PlaceBlockEvent struct {
	Pos   [3]int `json:"pos"`
	Block uint16 `json:"block"`
	Meta  uint8  `json:"meta,omitempty"`
}

func (*PlaceBlockEvent) EventName() string { return "PlaceBlockEvent" }

type DigBlockEvent struct {
	Pos [3]int `json:"pos"`
}

func (*DigBlockEvent) EventName() string { return "DigBlockEvent" }

// ViewDistanceEvent changes how many regions around the sender are streamed.
type ViewDistanceEvent struct {
	Mode string `json:"mode"`
}

func (*ViewDistanceEvent) EventName() string { return "ViewDistanceEvent" }
