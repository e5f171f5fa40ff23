package relevance

import (
	"math/rand"
	"reflect"
	"testing"

	"voxelrelay.ai/internal/sim/entity"
)

const (
	tA entity.ComponentType = "A"
	tB entity.ComponentType = "B"
	tC entity.ComponentType = "C"
)

func relevantTracker(ids ...entity.NetID) *Tracker {
	tr := NewTracker()
	for _, id := range ids {
		tr.MarkInitial(id)
	}
	tr.FlushInitial()
	return tr
}

func TestFlushInitial_SortedAndPromoted(t *testing.T) {
	tr := NewTracker()
	tr.MarkInitial(9)
	tr.MarkInitial(3)
	tr.MarkInitial(5)
	got := tr.FlushInitial()
	want := []entity.NetID{3, 5, 9}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FlushInitial=%v want %v", got, want)
	}
	for _, id := range want {
		if tr.State(id) != Relevant {
			t.Fatalf("state(%d)=%v want RELEVANT", id, tr.State(id))
		}
	}
	if again := tr.FlushInitial(); len(again) != 0 {
		t.Fatalf("second flush=%v want empty", again)
	}
}

func TestMarkRemoved_PendingInitialIsForgotten(t *testing.T) {
	tr := NewTracker()
	tr.MarkInitial(7)
	tr.MarkRemoved(7)
	if got := tr.FlushInitial(); len(got) != 0 {
		t.Fatalf("initial=%v want empty", got)
	}
	if got := tr.FlushRemoved(); len(got) != 0 {
		t.Fatalf("removed=%v want empty", got)
	}
	if tr.State(7) != NotRelevant {
		t.Fatalf("state=%v want NOT_RELEVANT", tr.State(7))
	}
}

func TestMarkRemoved_RelevantIsQueuedAndClearsDeltas(t *testing.T) {
	tr := relevantTracker(4)
	tr.MarkComponentDirty(4, tA)
	tr.MarkComponentAdded(4, tB)
	tr.MarkRemoved(4)
	if got := tr.FlushDirty(); len(got) != 0 {
		t.Fatalf("dirty=%v want empty after removal", got)
	}
	if got := tr.FlushRemoved(); !reflect.DeepEqual(got, []entity.NetID{4}) {
		t.Fatalf("removed=%v want [4]", got)
	}
}

func TestRemovedThenReinitialKeepsBoth(t *testing.T) {
	tr := relevantTracker(4)
	tr.MarkRemoved(4)
	tr.MarkInitial(4)
	if got := tr.FlushRemoved(); !reflect.DeepEqual(got, []entity.NetID{4}) {
		t.Fatalf("removed=%v want [4]", got)
	}
	if got := tr.FlushInitial(); !reflect.DeepEqual(got, []entity.NetID{4}) {
		t.Fatalf("initial=%v want [4]", got)
	}
}

func TestComponentMarks_IgnoredUnlessRelevant(t *testing.T) {
	tr := NewTracker()
	tr.MarkInitial(1)
	tr.MarkComponentAdded(1, tA)
	tr.MarkComponentDirty(1, tB)
	tr.MarkComponentAdded(2, tA)
	tr.FlushInitial()
	if got := tr.FlushDirty(); len(got) != 0 {
		t.Fatalf("dirty=%v want none for pre-send marks", got)
	}
}

func TestReconciliation(t *testing.T) {
	tr := relevantTracker(1, 2, 3, 4)

	// removed then added -> dirty
	tr.MarkComponentRemoved(1, tA)
	tr.MarkComponentAdded(1, tA)

	// added then removed -> nothing
	tr.MarkComponentAdded(2, tA)
	tr.MarkComponentRemoved(2, tA)

	// dirty on an added type is absorbed
	tr.MarkComponentAdded(3, tA)
	tr.MarkComponentDirty(3, tA)

	// dirty then removed -> removed only
	tr.MarkComponentDirty(4, tA)
	tr.MarkComponentRemoved(4, tA)

	got := tr.FlushDirty()
	want := []Delta{
		{ID: 1, Dirty: []entity.ComponentType{tA}},
		{ID: 3, Added: []entity.ComponentType{tA}},
		{ID: 4, Removed: []entity.ComponentType{tA}},
	}
	if len(got) != len(want) {
		t.Fatalf("deltas=%+v want %+v", got, want)
	}
	for i := range want {
		if got[i].ID != want[i].ID ||
			len(got[i].Added) != len(want[i].Added) ||
			len(got[i].Removed) != len(want[i].Removed) ||
			len(got[i].Dirty) != len(want[i].Dirty) {
			t.Fatalf("delta[%d]=%+v want %+v", i, got[i], want[i])
		}
	}
}

func TestDirtyThenAddedIsAddedOnly(t *testing.T) {
	tr := relevantTracker(1)
	tr.MarkComponentDirty(1, tA)
	tr.MarkComponentAdded(1, tA)
	got := tr.FlushDirty()
	if len(got) != 1 || len(got[0].Added) != 1 || len(got[0].Dirty) != 0 {
		t.Fatalf("delta=%+v want added only", got)
	}
}

func TestDeltaSetsStayDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	types := []entity.ComponentType{tA, tB, tC}
	for round := 0; round < 200; round++ {
		tr := relevantTracker(1)
		for i := 0; i < 12; i++ {
			ct := types[rng.Intn(len(types))]
			switch rng.Intn(3) {
			case 0:
				tr.MarkComponentAdded(1, ct)
			case 1:
				tr.MarkComponentRemoved(1, ct)
			default:
				tr.MarkComponentDirty(1, ct)
			}
		}
		for _, d := range tr.FlushDirty() {
			seen := map[entity.ComponentType]int{}
			for _, s := range [][]entity.ComponentType{d.Added, d.Removed, d.Dirty} {
				for _, ct := range s {
					seen[ct]++
				}
			}
			for ct, n := range seen {
				if n != 1 {
					t.Fatalf("round %d: type %s appears %d times in %+v", round, ct, n, d)
				}
			}
		}
	}
}

func TestFlushEmptyIsIdempotent(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 2; i++ {
		if tr.FlushInitial() != nil || tr.FlushDirty() != nil || tr.FlushRemoved() != nil {
			t.Fatalf("flush %d of empty tracker returned data", i)
		}
	}
	if tr.Len() != 0 {
		t.Fatalf("len=%d want 0", tr.Len())
	}
}
