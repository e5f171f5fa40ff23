package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfigMatchesDefaults(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults():\n got %+v\nwant %+v", got, Defaults())
	}
}

func TestLoad_PartialOverlay(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: 10\nstreaming:\n  total_bandwidth: 64\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickRateHz != 10 || got.Streaming.TotalBandwidth != 64 {
		t.Fatalf("overlay not applied: %+v", got)
	}
	if got.Streaming.RegionSendRate != 0.05469 {
		t.Fatalf("unset field lost its default: %v", got.Streaming.RegionSendRate)
	}
	if d := got.TickDurationSec(); d != 0.1 {
		t.Fatalf("tick duration=%v want 0.1", d)
	}
}

func TestLoad_Invalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	_ = os.WriteFile(p, []byte("relevance:\n  view_radii: [4, 3, 2, 1]\n"), 0o644)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
	_ = os.WriteFile(p, []byte("tick_rate_hz: [\n"), 0o644)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected yaml error")
	}
}
