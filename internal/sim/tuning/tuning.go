package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`
	// NetTickEvery sends one envelope per client every N simulation ticks.
	NetTickEvery int   `yaml:"net_tick_every"`
	Seed         int64 `yaml:"seed"`

	World     World     `yaml:"world"`
	Streaming Streaming `yaml:"streaming"`
	Relevance Relevance `yaml:"relevance"`

	HistorySamples int `yaml:"history_samples"`
}

type World struct {
	MinRegionY int `yaml:"min_region_y"`
	MaxRegionY int `yaml:"max_region_y"`
	Layers     int `yaml:"layers"`
}

type Streaming struct {
	// RegionSendRate is regions per second per unit of bandwidth.
	RegionSendRate float64 `yaml:"region_send_rate"`
	// TotalBandwidth is split evenly across connected clients.
	TotalBandwidth float64 `yaml:"total_bandwidth"`
}

type Relevance struct {
	// EntityRadius is in blocks.
	EntityRadius float64 `yaml:"entity_radius"`
	// ViewRadii are region radii for near, moderate, far and ultra.
	ViewRadii [4]int `yaml:"view_radii"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      20,
		NetTickEvery:    1,
		Seed:            1337,
		World:           World{MinRegionY: 0, MaxRegionY: 3, Layers: 1},
		Streaming:       Streaming{RegionSendRate: 0.05469, TotalBandwidth: 512},
		Relevance:       Relevance{EntityRadius: 48, ViewRadii: [4]int{1, 2, 4, 6}},
		HistorySamples:  64,
	}
}

// TickDurationSec is the length of one net tick.
func (t Tuning) TickDurationSec() float64 {
	return float64(t.NetTickEvery) / float64(t.TickRateHz)
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("tick_rate_hz must be > 0")
	case t.NetTickEvery <= 0:
		return fmt.Errorf("net_tick_every must be > 0")
	case t.Streaming.RegionSendRate <= 0:
		return fmt.Errorf("streaming.region_send_rate must be > 0")
	case t.Streaming.TotalBandwidth <= 0:
		return fmt.Errorf("streaming.total_bandwidth must be > 0")
	case t.World.MaxRegionY < t.World.MinRegionY:
		return fmt.Errorf("world.max_region_y < world.min_region_y")
	case t.HistorySamples <= 0:
		return fmt.Errorf("history_samples must be > 0")
	}
	for i := 1; i < len(t.Relevance.ViewRadii); i++ {
		if t.Relevance.ViewRadii[i] < t.Relevance.ViewRadii[i-1] {
			return fmt.Errorf("relevance.view_radii must be non-decreasing")
		}
	}
	return nil
}

// Load overlays the YAML file at path on Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
