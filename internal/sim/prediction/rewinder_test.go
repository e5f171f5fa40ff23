package prediction

import (
	"testing"

	"voxelrelay.ai/internal/sim/entity"
	"voxelrelay.ai/internal/sim/mathx"
)

func posX(s *entity.Store, e *entity.Entity) float64 {
	p, _ := s.Position(e)
	return p.X
}

func TestRewinder_RewindAndRestore(t *testing.T) {
	s := entity.NewStore()
	me := s.Create("C1", &entity.Network{}, &entity.Location{})
	other := s.Create("", &entity.Network{}, &entity.Location{})
	r := NewRewinder(s, 8)

	for tick := int64(0); tick < 5; tick++ {
		s.ReplaceQuiet(other, &entity.Location{Pos: mathx.Vec3f{X: float64(tick * 10)}})
		s.ReplaceQuiet(me, &entity.Location{Pos: mathx.Vec3f{X: float64(-tick)}})
		r.Record(tick * 50)
	}

	r.LagCompensate(me, 120)
	if got := posX(s, other); got != 20 {
		t.Fatalf("rewound x=%v want 20 (sample at 100ms)", got)
	}
	if got := posX(s, me); got != -4 {
		t.Fatalf("client entity moved to %v; it must stay in the present", got)
	}
	r.LagCompensate(me, 0)
	if got := posX(s, other); got != 20 {
		t.Fatalf("second LagCompensate should be a no-op, x=%v", got)
	}

	r.RestoreToPresent()
	if got := posX(s, other); got != 40 {
		t.Fatalf("restored x=%v want 40", got)
	}
	r.RestoreToPresent()
	if r.Active() {
		t.Fatalf("rewinder still active")
	}
}

func TestRewinder_HistoryWraps(t *testing.T) {
	s := entity.NewStore()
	e := s.Create("", &entity.Location{})
	r := NewRewinder(s, 3)
	for tick := int64(0); tick < 10; tick++ {
		s.ReplaceQuiet(e, &entity.Location{Pos: mathx.Vec3f{X: float64(tick)}})
		r.Record(tick)
	}
	r.LagCompensate(nil, 1)
	if got := posX(s, e); got != 9 {
		t.Fatalf("sample older than history should leave entity alone, x=%v", got)
	}
	r.RestoreToPresent()
	r.LagCompensate(nil, 8)
	if got := posX(s, e); got != 8 {
		t.Fatalf("x=%v want 8", got)
	}
}
