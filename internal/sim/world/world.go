package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"voxelrelay.ai/internal/sim/mathx"
)

// Listener is notified of region relevance and world edits. Region callbacks
// fire from UpdateRelevance; edit callbacks fire from SetBlock/SetExtraData on
// whatever goroutine made the edit.
//
// OnRegionRelevant receives the live region, not a copy. It stays current as
// the world is edited and must only be read on the simulation goroutine.
type Listener interface {
	OnRegionRelevant(pos mathx.Vec3i, r *Region)
	OnRegionIrrelevant(pos mathx.Vec3i)
	OnBlockChanged(pos mathx.Vec3i, newBlock, oldBlock uint16)
	OnExtraDataChanged(layer int, pos mathx.Vec3i, newV, oldV uint8)
}

// FamilyListener hears about newly registered block families.
type FamilyListener interface {
	OnFamilyRegistered(f Family)
}

type Config struct {
	Gen Gen
	// MinRegionY and MaxRegionY bound the vertical extent, inclusive.
	MinRegionY int
	MaxRegionY int
	// Layers is the number of per-cell attribute layers.
	Layers int
}

func DefaultConfig(seed int64) Config {
	return Config{Gen: DefaultGen(seed), MinRegionY: 0, MaxRegionY: 3, Layers: 1}
}

// World is a lazily generated region store. Region data must only be touched
// from the simulation goroutine; listener registration is safe from anywhere.
type World struct {
	cfg Config

	regions map[mathx.Vec3i]*Region
	// edited regions differ from what Gen produces and are what snapshots keep.
	edited map[mathx.Vec3i]struct{}

	mu        sync.Mutex
	listeners []Listener
	relevant  map[Listener]map[mathx.Vec3i]struct{}
	families  map[string]Family
}

func New(cfg Config) *World {
	if cfg.MaxRegionY < cfg.MinRegionY {
		cfg.MaxRegionY = cfg.MinRegionY
	}
	w := &World{
		cfg:      cfg,
		regions:  map[mathx.Vec3i]*Region{},
		edited:   map[mathx.Vec3i]struct{}{},
		relevant: map[Listener]map[mathx.Vec3i]struct{}{},
		families: map[string]Family{},
	}
	for _, f := range coreFamilies() {
		w.families[f.Name] = f
	}
	return w
}

func (w *World) Layers() int { return w.cfg.Layers }

func (w *World) inBounds(region mathx.Vec3i) bool {
	return region.Y >= w.cfg.MinRegionY && region.Y <= w.cfg.MaxRegionY
}

func (w *World) region(pos mathx.Vec3i) *Region {
	if r, ok := w.regions[pos]; ok {
		return r
	}
	r := newRegion(pos, w.cfg.Layers)
	w.cfg.Gen.fill(r)
	w.regions[pos] = r
	return r
}

// Region returns a copy of the region at pos, generating it if needed.
func (w *World) Region(pos mathx.Vec3i) (*Region, bool) {
	if !w.inBounds(pos) {
		return nil, false
	}
	return w.region(pos).Clone(), true
}

func (w *World) GetBlock(pos mathx.Vec3i) uint16 {
	rp := mathx.RegionOf(pos, RegionSize)
	if !w.inBounds(rp) {
		return Air
	}
	return w.region(rp).Get(mathx.LocalOf(pos, RegionSize))
}

// SetBlock writes b at pos and notifies listeners when the value changed.
func (w *World) SetBlock(pos mathx.Vec3i, b uint16) error {
	rp := mathx.RegionOf(pos, RegionSize)
	if !w.inBounds(rp) {
		return fmt.Errorf("block %v out of world bounds", pos)
	}
	old := w.region(rp).set(mathx.LocalOf(pos, RegionSize), b)
	if old == b {
		return nil
	}
	w.edited[rp] = struct{}{}
	for _, l := range w.snapshotListeners() {
		l.OnBlockChanged(pos, b, old)
	}
	return nil
}

func (w *World) ExtraData(layer int, pos mathx.Vec3i) uint8 {
	rp := mathx.RegionOf(pos, RegionSize)
	if !w.inBounds(rp) || layer < 0 || layer >= w.cfg.Layers {
		return 0
	}
	return w.region(rp).Layers[layer][index(mathx.LocalOf(pos, RegionSize))]
}

func (w *World) SetExtraData(layer int, pos mathx.Vec3i, v uint8) error {
	rp := mathx.RegionOf(pos, RegionSize)
	if !w.inBounds(rp) {
		return fmt.Errorf("cell %v out of world bounds", pos)
	}
	if layer < 0 || layer >= w.cfg.Layers {
		return fmt.Errorf("extra data layer %d out of range", layer)
	}
	l := w.region(rp).Layers[layer]
	i := index(mathx.LocalOf(pos, RegionSize))
	old := l[i]
	if old == v {
		return nil
	}
	l[i] = v
	w.edited[rp] = struct{}{}
	for _, ls := range w.snapshotListeners() {
		ls.OnExtraDataChanged(layer, pos, v, old)
	}
	return nil
}

func (w *World) RegisterListener(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, x := range w.listeners {
		if x == l {
			return
		}
	}
	w.listeners = append(w.listeners, l)
	w.relevant[l] = map[mathx.Vec3i]struct{}{}
}

func (w *World) UnregisterListener(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, x := range w.listeners {
		if x == l {
			w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
			break
		}
	}
	delete(w.relevant, l)
}

func (w *World) snapshotListeners() []Listener {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Listener(nil), w.listeners...)
}

// UpdateRelevance makes the cube of regions within radius of center relevant
// to l. Regions that fell out are reported first, then new ones nearest
// first; ties are broken by coordinate.
func (w *World) UpdateRelevance(l Listener, center mathx.Vec3i, radius int) {
	if radius < 0 {
		radius = 0
	}
	want := map[mathx.Vec3i]struct{}{}
	for dy := -radius; dy <= radius; dy++ {
		for dz := -radius; dz <= radius; dz++ {
			for dx := -radius; dx <= radius; dx++ {
				p := center.Add(mathx.Vec3i{X: dx, Y: dy, Z: dz})
				if w.inBounds(p) {
					want[p] = struct{}{}
				}
			}
		}
	}

	var gone, added []mathx.Vec3i
	w.mu.Lock()
	cur, ok := w.relevant[l]
	if !ok {
		w.mu.Unlock()
		return
	}
	for p := range cur {
		if _, ok := want[p]; !ok {
			gone = append(gone, p)
			delete(cur, p)
		}
	}
	for p := range want {
		if _, ok := cur[p]; !ok {
			added = append(added, p)
			cur[p] = struct{}{}
		}
	}
	w.mu.Unlock()

	sort.Slice(gone, func(i, j int) bool { return gone[i].Less(gone[j]) })
	sort.Slice(added, func(i, j int) bool {
		di := added[i].DistanceSquared(center)
		dj := added[j].DistanceSquared(center)
		if di != dj {
			return di < dj
		}
		return added[i].Less(added[j])
	})
	for _, p := range gone {
		l.OnRegionIrrelevant(p)
	}
	for _, p := range added {
		l.OnRegionRelevant(p, w.region(p))
	}
}

// RelevantRegions returns the regions currently relevant to l, sorted.
func (w *World) RelevantRegions(l Listener) []mathx.Vec3i {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]mathx.Vec3i, 0, len(w.relevant[l]))
	for p := range w.relevant[l] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

var ErrFamilyExists = errors.New("block family already registered")

// RegisterFamily adds f and announces it to every FamilyListener. A name that
// is already taken returns ErrFamilyExists; ids owned by another family, or
// air, are rejected.
func (w *World) RegisterFamily(f Family) error {
	if f.Name == "" || len(f.IDs) == 0 {
		return fmt.Errorf("family needs a name and at least one id")
	}
	w.mu.Lock()
	if _, ok := w.families[f.Name]; ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFamilyExists, f.Name)
	}
	for _, id := range f.IDs {
		if id == Air {
			w.mu.Unlock()
			return fmt.Errorf("family %s: id 0 is air", f.Name)
		}
		if owner, ok := w.ownerLocked(id); ok {
			w.mu.Unlock()
			return fmt.Errorf("family %s: id %d belongs to %s", f.Name, id, owner)
		}
	}
	f.IDs = append([]uint16(nil), f.IDs...)
	w.families[f.Name] = f
	ls := append([]Listener(nil), w.listeners...)
	w.mu.Unlock()
	for _, l := range ls {
		if fl, ok := l.(FamilyListener); ok {
			fl.OnFamilyRegistered(f)
		}
	}
	return nil
}

func (w *World) ownerLocked(id uint16) (string, bool) {
	for name, f := range w.families {
		for _, x := range f.IDs {
			if x == id {
				return name, true
			}
		}
	}
	return "", false
}

// KnownBlock reports whether id is air or belongs to a registered family.
func (w *World) KnownBlock(id uint16) bool {
	if id == Air {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.ownerLocked(id)
	return ok
}

func (w *World) Families() []Family {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Family, 0, len(w.families))
	for _, f := range w.families {
		out = append(out, f)
	}
	sortFamilies(out)
	return out
}

// Edited returns copies of every region changed since generation, sorted by
// position.
func (w *World) Edited() []*Region {
	out := make([]*Region, 0, len(w.edited))
	for p := range w.edited {
		out = append(out, w.regions[p].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos.Less(out[j].Pos) })
	return out
}

// Restore installs r in place of the generated region at r.Pos without
// notifying listeners. It is meant for loading saved state before any
// client connects: listeners already holding the old region keep it.
func (w *World) Restore(r *Region) error {
	if !w.inBounds(r.Pos) {
		return fmt.Errorf("region %v out of world bounds", r.Pos)
	}
	if len(r.Blocks) != RegionSizeX*RegionSizeY*RegionSizeZ {
		return fmt.Errorf("region %v: %d blocks", r.Pos, len(r.Blocks))
	}
	if len(r.Layers) != w.cfg.Layers {
		return fmt.Errorf("region %v: %d layers want %d", r.Pos, len(r.Layers), w.cfg.Layers)
	}
	for i, l := range r.Layers {
		if len(l) != len(r.Blocks) {
			return fmt.Errorf("region %v: layer %d has %d cells", r.Pos, i, len(l))
		}
	}
	w.regions[r.Pos] = r.Clone()
	w.edited[r.Pos] = struct{}{}
	return nil
}
