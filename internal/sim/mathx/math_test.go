package mathx

import (
	"math"
	"testing"
)

func TestFloorDivAndMod(t *testing.T) {
	if got := FloorDiv(-1, 16); got != -1 {
		t.Fatalf("FloorDiv(-1,16)=%d want -1", got)
	}
	if got := FloorDiv(-16, 16); got != -1 {
		t.Fatalf("FloorDiv(-16,16)=%d want -1", got)
	}
	if got := FloorDiv(-17, 16); got != -2 {
		t.Fatalf("FloorDiv(-17,16)=%d want -2", got)
	}
	if got := Mod(-1, 16); got != 15 {
		t.Fatalf("Mod(-1,16)=%d want 15", got)
	}
}

func TestRegionOf(t *testing.T) {
	size := Vec3i{X: 16, Y: 16, Z: 16}
	got := RegionOf(Vec3i{X: -1, Y: 31, Z: 16}, size)
	want := Vec3i{X: -1, Y: 1, Z: 1}
	if got != want {
		t.Fatalf("RegionOf=%+v want %+v", got, want)
	}
	local := LocalOf(Vec3i{X: -1, Y: 31, Z: 16}, size)
	if local != (Vec3i{X: 15, Y: 15, Z: 0}) {
		t.Fatalf("LocalOf=%+v", local)
	}
}

func TestRoundHalfUp(t *testing.T) {
	got := Vec3f{X: 0.5, Y: -0.5, Z: 2.49}.RoundHalfUp()
	want := Vec3i{X: 1, Y: 0, Z: 2}
	if got != want {
		t.Fatalf("RoundHalfUp=%+v want %+v", got, want)
	}
	if !(Vec3f{X: math.NaN()}).IsNaN() {
		t.Fatalf("expected NaN detection")
	}
}

func TestVec3iLess(t *testing.T) {
	a := Vec3i{X: 0, Y: 1, Z: 0}
	b := Vec3i{X: 0, Y: 0, Z: 5}
	if a.Less(b) || !b.Less(a) {
		t.Fatalf("lexicographic order broken: a=%+v b=%+v", a, b)
	}
}
