package belief

import (
	"testing"

	"github.com/despot-go/despot/particle"
	"github.com/despot-go/despot/streams"
)

// coinModel is a trivial two-state model: state 0 or 1, never changed by
// either action, and observed exactly (the observation is the state).
type coinModel struct{}

func (coinModel) NumActions() int       { return 2 }
func (coinModel) TerminalObs() uint64   { return 99 }
func (coinModel) IsTerminal(s int) bool { return false }
func (coinModel) Allocate() int         { return 0 }
func (coinModel) Copy(s int) int        { return s }
func (coinModel) Free(int)              {}
func (coinModel) Step(s *int, u float64, a int) (float64, uint64) {
	return 0, uint64(*s)
}

func TestSampleAssignsDistinctStreamIDs(t *testing.T) {
	rs := streams.New(10, 4, 1)
	m := coinModel{}
	f := NewParticleFilter[int](m, rs)

	pool := []int{0, 0, 1, 1, 0, 1}
	weights := []float64{1, 1, 1, 1, 1, 1}

	out := f.Sample(pool, weights, 4)
	if len(out) != 4 {
		t.Fatalf("expected 4 particles, got %d", len(out))
	}

	seen := map[int]bool{}
	for _, p := range out {
		if seen[p.ID] {
			t.Fatalf("stream id %d assigned to more than one particle", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestUpdateKeepsMatchingObservation(t *testing.T) {
	rs := streams.New(10, 4, 1)
	m := coinModel{}
	f := NewParticleFilter[int](m, rs)

	particles := particle.BeliefSet[int]{
		{State: 0, ID: 0, Weight: 0.5},
		{State: 1, ID: 1, Weight: 0.5},
	}

	out := f.Update(particles, 2, 0, 0)
	if len(out) != 2 {
		t.Fatalf("expected 2 particles after update, got %d", len(out))
	}
	for _, p := range out {
		if p.State != 0 {
			t.Fatalf("expected all resampled particles to have state 0, got %d", p.State)
		}
	}
}

func TestUpdateDeprivationPanics(t *testing.T) {
	rs := streams.New(10, 4, 1)
	m := coinModel{}
	f := NewParticleFilter[int](m, rs)

	particles := particle.BeliefSet[int]{{State: 0, ID: 0, Weight: 1}}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when no particle matches the observed observation")
		}
	}()
	f.Update(particles, 1, 0, 42)
}
