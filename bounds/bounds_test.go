package bounds

import (
	"testing"

	"github.com/despot-go/despot/history"
	"github.com/despot-go/despot/particle"
	"github.com/despot-go/despot/streams"
)

// twoStateModel: state 0 moves to state 1 under action 0 for reward 1,
// stays under action 1 for reward 0. Deterministic.
type twoStateModel struct{}

func (twoStateModel) NumActions() int       { return 2 }
func (twoStateModel) TerminalObs() uint64   { return 9 }
func (twoStateModel) IsTerminal(s int) bool { return s == 1 }
func (twoStateModel) Allocate() int         { return 0 }
func (twoStateModel) Copy(s int) int        { return s }
func (twoStateModel) Free(int)              {}
func (twoStateModel) Step(s *int, u float64, a int) (float64, uint64) {
	if *s == 1 {
		return 0, 9
	}
	if a == 0 {
		*s = 1
		return 1, 9
	}
	return 0, 0
}

type goPolicy struct{}

func (goPolicy) Action(int) int { return 0 }

func TestModePolicyBoundPicksMajorityState(t *testing.T) {
	model := twoStateModel{}
	rs := streams.New(8, 8, 1)
	h := history.New()
	lb := ModePolicyBound[int]{Policy: goPolicy{}, Discount: 0.9, SearchDepth: 4}

	particles := particle.BeliefSet[int]{
		{State: 0, ID: 0, Weight: 0.7},
		{State: 0, ID: 1, Weight: 0.3},
	}
	value, defaultAction := lb.Value(h, particles, 0, model, rs)
	if defaultAction != 0 {
		t.Fatalf("expected default action 0, got %d", defaultAction)
	}
	if value <= 0 {
		t.Fatalf("expected a positive rollout value, got %g", value)
	}
}

func TestRandomPolicyBoundIsDeterministic(t *testing.T) {
	model := twoStateModel{}
	rs := streams.New(8, 8, 7)
	h := history.New()
	lb := RandomPolicyBound[int]{Discount: 0.9, SearchDepth: 4}
	particles := particle.BeliefSet[int]{{State: 0, ID: 0, Weight: 1}}

	v1, a1 := lb.Value(h, particles, 0, model, rs)
	v2, a2 := lb.Value(h, particles, 0, model, rs)
	if v1 != v2 || a1 != a2 {
		t.Fatalf("RandomPolicyBound not deterministic: (%g,%d) vs (%g,%d)", v1, a1, v2, a2)
	}
}

func TestStochasticBoundAveragesByWeight(t *testing.T) {
	h := history.New()
	model := twoStateModel{}
	rs := streams.New(4, 4, 1)
	ub := StochasticBound[int]{Heuristic: func(s int, depth int) float64 {
		if s == 1 {
			return 0
		}
		return 10
	}}
	particles := particle.BeliefSet[int]{
		{State: 0, ID: 0, Weight: 0.5},
		{State: 1, ID: 1, Weight: 0.5},
	}
	got := ub.Value(h, particles, 0, model, rs)
	if got != 5 {
		t.Fatalf("expected weighted average 5, got %g", got)
	}
}

func TestNonStochasticBoundUsesFirstParticleOnly(t *testing.T) {
	h := history.New()
	model := twoStateModel{}
	rs := streams.New(4, 4, 1)
	ub := NonStochasticBound[int]{Heuristic: func(s int, depth int) float64 {
		if s == 1 {
			return 0
		}
		return 10
	}}
	particles := particle.BeliefSet[int]{
		{State: 0, ID: 0, Weight: 0.5},
		{State: 1, ID: 1, Weight: 0.5},
	}
	got := ub.Value(h, particles, 0, model, rs)
	if got != 10 {
		t.Fatalf("expected first-particle heuristic 10, got %g", got)
	}
}

func TestBoundsOnEmptyBeliefReturnZero(t *testing.T) {
	h := history.New()
	model := twoStateModel{}
	rs := streams.New(4, 4, 1)
	lb := ModePolicyBound[int]{Policy: goPolicy{}, Discount: 0.9, SearchDepth: 4}
	ub := StochasticBound[int]{Heuristic: func(int, int) float64 { return 1 }}

	v, a := lb.Value(h, nil, 0, model, rs)
	if v != 0 || a != 0 {
		t.Fatalf("expected (0,0) on empty belief, got (%g,%d)", v, a)
	}
	if got := ub.Value(h, nil, 0, model, rs); got != 0 {
		t.Fatalf("expected 0 on empty belief, got %g", got)
	}
}
