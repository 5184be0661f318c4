package buffer

import (
	"errors"
	"math/rand"
	"sync"
)

// ReplayBuffer is a fixed-capacity ring of transitions. Once full, every
// push overwrites the oldest entry.
type ReplayBuffer struct {
	mu       sync.Mutex
	items    []Transition
	head     int
	size     int
	capacity int
	seq      uint64
}

var (
	ErrInsufficientData = errors.New("buffer holds fewer transitions than requested")
	ErrInvalidCapacity  = errors.New("capacity must be greater than zero")
)

func NewReplayBuffer(capacity int) (*ReplayBuffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &ReplayBuffer{
		items:    make([]Transition, capacity),
		capacity: capacity,
	}, nil
}

// Push stores t and returns the sequence number it was stamped with.
func (rb *ReplayBuffer) Push(t Transition) uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	t.Seq = rb.seq
	t.State = cloneVec(t.State)
	t.NextState = cloneVec(t.NextState)

	if rb.size < rb.capacity {
		rb.items[(rb.head+rb.size)%rb.capacity] = t
		rb.size++
		return t.Seq
	}
	rb.items[rb.head] = t
	rb.head = (rb.head + 1) % rb.capacity
	return t.Seq
}

// Sample draws n distinct transitions uniformly at random. The buffer is
// left untouched when it holds fewer than n entries.
func (rb *ReplayBuffer) Sample(n int, rng *rand.Rand) ([]Transition, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n <= 0 || rb.size < n {
		return nil, ErrInsufficientData
	}
	out := make([]Transition, 0, n)
	for _, idx := range rng.Perm(rb.size)[:n] {
		out = append(out, rb.items[(rb.head+idx)%rb.capacity])
	}
	return out, nil
}

// Items returns the stored transitions oldest first.
func (rb *ReplayBuffer) Items() []Transition {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]Transition, 0, rb.size)
	for i := 0; i < rb.size; i++ {
		out = append(out, rb.items[(rb.head+i)%rb.capacity])
	}
	return out
}

func (rb *ReplayBuffer) Capacity() int {
	return rb.capacity
}

func (rb *ReplayBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.size
}

func (rb *ReplayBuffer) Stats() Stats {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return Stats{Size: rb.size, Capacity: rb.capacity, Pushed: rb.seq}
}

func cloneVec(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
