package buffer

import (
	"errors"
	"math/rand"
	"testing"
)

func push(rb *ReplayBuffer, n int) {
	for i := 0; i < n; i++ {
		rb.Push(Transition{State: []float64{float64(i)}, Action: i % 2, Reward: float64(i), NextState: []float64{float64(i + 1)}})
	}
}

func TestNewReplayBuffer_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := NewReplayBuffer(capacity); !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("capacity %d: expected ErrInvalidCapacity, got %v", capacity, err)
		}
	}
}

func TestReplayBuffer_LengthNeverExceedsCapacity(t *testing.T) {
	rb, err := NewReplayBuffer(200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 450; i++ {
		push(rb, 1)
		if rb.Len() > rb.Capacity() {
			t.Fatalf("after %d pushes length %d exceeds capacity %d", i+1, rb.Len(), rb.Capacity())
		}
	}
	if rb.Len() != 200 {
		t.Errorf("expected length 200, got %d", rb.Len())
	}
}

func TestReplayBuffer_EvictsOldestFirst(t *testing.T) {
	rb, _ := NewReplayBuffer(200)
	push(rb, 201)

	items := rb.Items()
	if len(items) != 200 {
		t.Fatalf("expected 200 items, got %d", len(items))
	}
	if items[0].Seq != 2 {
		t.Errorf("expected oldest seq 2 after eviction, got %d", items[0].Seq)
	}
	if items[len(items)-1].Seq != 201 {
		t.Errorf("expected newest seq 201, got %d", items[len(items)-1].Seq)
	}
	for i := 1; i < len(items); i++ {
		if items[i].Seq != items[i-1].Seq+1 {
			t.Fatalf("items out of order at %d: %d after %d", i, items[i].Seq, items[i-1].Seq)
		}
	}
}

func TestReplayBuffer_SampleInsufficientLeavesStateAlone(t *testing.T) {
	rb, _ := NewReplayBuffer(200)
	push(rb, 5)
	before := rb.Items()

	got, err := rb.Sample(16, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil sample, got %d items", len(got))
	}

	after := rb.Items()
	if len(after) != len(before) {
		t.Fatalf("length changed from %d to %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Seq != after[i].Seq {
			t.Errorf("item %d changed: seq %d -> %d", i, before[i].Seq, after[i].Seq)
		}
	}
}

func TestReplayBuffer_SampleDistinct(t *testing.T) {
	rb, _ := NewReplayBuffer(200)
	push(rb, 250)

	got, err := rb.Sample(16, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 16 {
		t.Fatalf("expected 16 samples, got %d", len(got))
	}
	seen := make(map[uint64]bool)
	for _, tr := range got {
		if seen[tr.Seq] {
			t.Errorf("seq %d sampled twice", tr.Seq)
		}
		if tr.Seq <= 50 {
			t.Errorf("seq %d was evicted and must not be sampled", tr.Seq)
		}
		seen[tr.Seq] = true
	}
}

func TestReplayBuffer_PushCopiesState(t *testing.T) {
	rb, _ := NewReplayBuffer(4)
	state := []float64{3}
	rb.Push(Transition{State: state, NextState: []float64{4}})
	state[0] = 99

	if got := rb.Items()[0].State[0]; got != 3 {
		t.Errorf("stored state mutated through caller slice: got %v", got)
	}
}

func TestReplayBuffer_Stats(t *testing.T) {
	rb, _ := NewReplayBuffer(3)
	push(rb, 5)

	stats := rb.Stats()
	if stats.Size != 3 || stats.Capacity != 3 || stats.Pushed != 5 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
