package evolution

import (
	"testing"
	"time"

	"github.com/sitosync/reasoner/internal/graph"
)

// #region test-store

func TestAddInstanceIsIdempotentByID(t *testing.T) {
	s := NewStore()
	if err := s.AddInstance(1, graph.Normal, 10*time.Second, 0); err != nil {
		t.Fatalf("add instance: %v", err)
	}
	if err := s.AddInstance(1, graph.Normal, 20*time.Second, 5*time.Second); err != nil {
		t.Fatalf("add instance again: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 instance, got %d", s.Len())
	}
	inst := s.MustInstance(1)
	if inst.Duration != 20*time.Second || inst.Cycle != 5*time.Second {
		t.Errorf("expected last-write-wins duration/cycle, got %+v", inst)
	}
}

func TestInstanceUnknownIDErrors(t *testing.T) {
	s := NewStore()
	if _, err := s.Instance(42); err == nil {
		t.Fatal("expected an error for an unregistered id")
	}
}

func TestCombineLattice(t *testing.T) {
	cases := []struct {
		a, b, want State
	}{
		{Triggered, Untriggered, Triggered},
		{Untriggered, Triggered, Triggered},
		{Triggered, Undetermined, Triggered},
		{Undetermined, Undetermined, Undetermined},
		{Undetermined, Untriggered, Untriggered},
		{Untriggered, Undetermined, Untriggered},
		{Untriggered, Untriggered, Untriggered},
	}
	for _, c := range cases {
		if got := Combine(c.a, c.b); got != c.want {
			t.Errorf("Combine(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestSnapshotIsIndependentOfStore(t *testing.T) {
	s := NewStore()
	if err := s.AddInstance(1, graph.Normal, time.Second, 0); err != nil {
		t.Fatalf("add instance: %v", err)
	}

	snap := s.Snapshot()
	inst := snap[1]
	inst.State = Triggered
	inst.Counter = 7
	snap[1] = inst

	if s.MustInstance(1).State != Untriggered || s.MustInstance(1).Counter != 0 {
		t.Fatalf("mutating the snapshot must not affect the store, got %+v", s.MustInstance(1))
	}
}

func TestCommitAppliesScratchValues(t *testing.T) {
	s := NewStore()
	if err := s.AddInstance(1, graph.Normal, time.Second, 0); err != nil {
		t.Fatalf("add instance: %v", err)
	}

	snap := s.Snapshot()
	inst := snap[1]
	inst.State = Triggered
	inst.Counter = 3
	snap[1] = inst

	s.Commit(snap)

	got := s.MustInstance(1)
	if got.State != Triggered || got.Counter != 3 {
		t.Errorf("commit did not apply scratch values, got %+v", got)
	}
}

func TestCommitCreatesMissingInstances(t *testing.T) {
	s := NewStore()
	scratch := map[int64]SituationInstance{
		9: {ID: 9, State: Triggered, Counter: 1},
	}

	s.Commit(scratch)

	if s.Len() != 1 {
		t.Fatalf("expected commit to register a new instance, got len %d", s.Len())
	}
	got := s.MustInstance(9)
	if got.State != Triggered || got.Counter != 1 {
		t.Errorf("got %+v, want Triggered/1", got)
	}
}

// #endregion test-store
