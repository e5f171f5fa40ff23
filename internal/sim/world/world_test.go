package world

import (
	"errors"
	"reflect"
	"testing"

	"voxelrelay.ai/internal/sim/mathx"
)

type recListener struct {
	relevant   []mathx.Vec3i
	irrelevant []mathx.Vec3i
	blocks     [][2]uint16
	extra      []uint8
	families   []string
}

func (r *recListener) OnRegionRelevant(p mathx.Vec3i, _ *Region) { r.relevant = append(r.relevant, p) }
func (r *recListener) OnRegionIrrelevant(p mathx.Vec3i)          { r.irrelevant = append(r.irrelevant, p) }
func (r *recListener) OnBlockChanged(_ mathx.Vec3i, n, o uint16) {
	r.blocks = append(r.blocks, [2]uint16{n, o})
}
func (r *recListener) OnExtraDataChanged(_ int, _ mathx.Vec3i, n, _ uint8) {
	r.extra = append(r.extra, n)
}
func (r *recListener) OnFamilyRegistered(f Family) { r.families = append(r.families, f.Name) }

func TestGen_Deterministic(t *testing.T) {
	a := New(DefaultConfig(42))
	b := New(DefaultConfig(42))
	ra, _ := a.Region(mathx.Vec3i{X: 3, Y: 1, Z: -2})
	rb, _ := b.Region(mathx.Vec3i{X: 3, Y: 1, Z: -2})
	if !reflect.DeepEqual(ra.Blocks, rb.Blocks) {
		t.Fatalf("same seed produced different regions")
	}
	// Bedrock layers are solid, the sky is empty.
	if got := a.GetBlock(mathx.Vec3i{X: 5, Y: 0, Z: 5}); got != Stone {
		t.Fatalf("block at y=0 is %s want stone", BlockName(got))
	}
	if got := a.GetBlock(mathx.Vec3i{X: 5, Y: 63, Z: 5}); got != Air {
		t.Fatalf("block at y=63 is %s want air", BlockName(got))
	}
}

func TestSetBlock_NotifiesOnChangeOnly(t *testing.T) {
	w := New(DefaultConfig(1))
	l := &recListener{}
	w.RegisterListener(l)
	p := mathx.Vec3i{X: -1, Y: 60, Z: 17}
	if err := w.SetBlock(p, Log); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	_ = w.SetBlock(p, Log)
	if len(l.blocks) != 1 || l.blocks[0] != [2]uint16{Log, Air} {
		t.Fatalf("block notifications=%v", l.blocks)
	}
	if w.GetBlock(p) != Log {
		t.Fatalf("GetBlock=%d want log", w.GetBlock(p))
	}
	if err := w.SetBlock(mathx.Vec3i{Y: -1}, Stone); err == nil {
		t.Fatalf("expected out-of-bounds error")
	}

	w.UnregisterListener(l)
	_ = w.SetBlock(p, Air)
	if len(l.blocks) != 1 {
		t.Fatalf("unregistered listener still notified")
	}
}

func TestSetExtraData(t *testing.T) {
	w := New(DefaultConfig(1))
	l := &recListener{}
	w.RegisterListener(l)
	p := mathx.Vec3i{X: 2, Y: 2, Z: 2}
	if err := w.SetExtraData(0, p, 9); err != nil {
		t.Fatalf("SetExtraData: %v", err)
	}
	if w.ExtraData(0, p) != 9 || len(l.extra) != 1 {
		t.Fatalf("extra=%d notifications=%v", w.ExtraData(0, p), l.extra)
	}
	if err := w.SetExtraData(3, p, 1); err == nil {
		t.Fatalf("expected layer range error")
	}
}

func TestUpdateRelevance_Diff(t *testing.T) {
	w := New(Config{Gen: DefaultGen(1), MinRegionY: 0, MaxRegionY: 0, Layers: 1})
	l := &recListener{}
	w.RegisterListener(l)

	w.UpdateRelevance(l, mathx.Vec3i{}, 1)
	if len(l.relevant) != 9 {
		t.Fatalf("relevant=%d want 9 (y clamped)", len(l.relevant))
	}
	if l.relevant[0] != (mathx.Vec3i{}) {
		t.Fatalf("first relevant=%v want center", l.relevant[0])
	}
	if l.relevant[1] != (mathx.Vec3i{X: -1}) {
		t.Fatalf("second relevant=%v want (-1,0,0) by tie-break", l.relevant[1])
	}

	l.relevant = nil
	w.UpdateRelevance(l, mathx.Vec3i{X: 1}, 1)
	want := []mathx.Vec3i{{X: -1, Z: -1}, {X: -1}, {X: -1, Z: 1}}
	if !reflect.DeepEqual(l.irrelevant, want) {
		t.Fatalf("irrelevant=%v want %v", l.irrelevant, want)
	}
	if len(l.relevant) != 3 {
		t.Fatalf("new relevant=%v want 3", l.relevant)
	}
	if got := len(w.RelevantRegions(l)); got != 9 {
		t.Fatalf("relevant set=%d want 9", got)
	}
}

func TestRegisterFamily(t *testing.T) {
	w := New(DefaultConfig(1))
	l := &recListener{}
	w.RegisterListener(l)
	if err := w.RegisterFamily(Family{Name: "mod:stairs", IDs: []uint16{40, 41}}); err != nil {
		t.Fatalf("RegisterFamily: %v", err)
	}
	if err := w.RegisterFamily(Family{Name: "mod:stairs", IDs: []uint16{50}}); !errors.Is(err, ErrFamilyExists) {
		t.Fatalf("duplicate err=%v want ErrFamilyExists", err)
	}
	if err := w.RegisterFamily(Family{Name: "mod:slab", IDs: []uint16{42, 41}}); err == nil {
		t.Fatalf("id owned by mod:stairs should be rejected")
	}
	if err := w.RegisterFamily(Family{Name: "mod:void", IDs: []uint16{Air}}); err == nil {
		t.Fatalf("air should be rejected")
	}
	if !w.KnownBlock(41) || !w.KnownBlock(Stone) || w.KnownBlock(42) {
		t.Fatalf("KnownBlock wrong after registration")
	}
	if !reflect.DeepEqual(l.families, []string{"mod:stairs"}) {
		t.Fatalf("announced=%v", l.families)
	}
	if n := len(w.Families()); n != len(paletteNames)+1 {
		t.Fatalf("families=%d want %d", n, len(paletteNames)+1)
	}
}

func TestRegion_PayloadRoundTrip(t *testing.T) {
	w := New(DefaultConfig(7))
	r, _ := w.Region(mathx.Vec3i{X: 1, Y: 1, Z: 1})
	if _, err := r.Payload(); err != nil {
		t.Fatalf("Payload: %v", err)
	}
}

func TestEditedAndRestore(t *testing.T) {
	a := New(DefaultConfig(5))
	if len(a.Edited()) != 0 {
		t.Fatalf("fresh world reports edits")
	}
	p := mathx.Vec3i{X: 20, Y: 40, Z: -3}
	_ = a.SetBlock(p, Log)
	_ = a.SetExtraData(0, mathx.Vec3i{X: 1, Y: 1, Z: 1}, 7)
	edited := a.Edited()
	if len(edited) != 2 {
		t.Fatalf("edited=%d want 2", len(edited))
	}

	b := New(DefaultConfig(5))
	l := &recListener{}
	b.RegisterListener(l)
	for _, r := range edited {
		if err := b.Restore(r); err != nil {
			t.Fatalf("Restore: %v", err)
		}
	}
	if b.GetBlock(p) != Log || b.ExtraData(0, mathx.Vec3i{X: 1, Y: 1, Z: 1}) != 7 {
		t.Fatalf("restored world lost edits")
	}
	if len(l.blocks) != 0 || len(l.extra) != 0 {
		t.Fatalf("Restore notified listeners")
	}

	bad := edited[0].Clone()
	bad.Layers = nil
	if err := b.Restore(bad); err == nil {
		t.Fatalf("expected layer count error")
	}
}
