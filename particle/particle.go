// Package particle defines the hidden-state sample type, the weighted
// multiset of samples that approximates a belief, and the problem-specific
// Model contract those samples are stepped through.
package particle

import "gonum.org/v1/gonum/floats"

// Particle is a single sampled hidden state paired with the stream id that
// determines its future random draws and a weight relative to its
// siblings. id is assigned once, at scenario-sampling time, and is
// preserved across every copy made while the particle is stepped forward.
type Particle[S any] struct {
	State  S
	ID     int
	Weight float64
}

// Model is the problem-specific plug-in the solver drives: state
// transition, termination, and particle memory management. It is held by
// the solver as an immutable reference — its plug-in implementation may
// hold its own state, but Step must not consult or mutate anything the
// solver depends on for bounds or search state.
type Model[S any] interface {
	// NumActions returns the number of actions available in every state.
	NumActions() int

	// TerminalObs returns the distinguished observation id that Step must
	// emit if, and only if, the resulting state is terminal.
	TerminalObs() uint64

	// IsTerminal reports whether state is terminal.
	IsTerminal(state S) bool

	// Step mutates state in place by applying action under the random
	// draw u (u is in [0,1)), returning the immediate reward and the
	// resulting observation. Step must emit TerminalObs() iff the
	// resulting state is terminal.
	Step(state *S, u float64, action int) (reward float64, obs uint64)

	// Allocate returns a new, zero-valued state for the model.
	Allocate() S

	// Copy returns an independent copy of state.
	Copy(state S) S

	// Free releases any resources held by state. Models backed by plain
	// Go values may implement this as a no-op.
	Free(state S)
}

// BeliefSet is a weighted multiset of particles approximating a belief.
type BeliefSet[S any] []Particle[S]

// TotalWeight returns the sum of the particles' weights.
func (b BeliefSet[S]) TotalWeight() float64 {
	if len(b) == 0 {
		return 0
	}
	w := make([]float64, len(b))
	for i, p := range b {
		w[i] = p.Weight
	}
	return floats.Sum(w)
}

// Copy returns a deep copy of the belief set, copying every particle's
// state through the model.
func (b BeliefSet[S]) Copy(m Model[S]) BeliefSet[S] {
	out := make(BeliefSet[S], len(b))
	for i, p := range b {
		out[i] = Particle[S]{State: m.Copy(p.State), ID: p.ID, Weight: p.Weight}
	}
	return out
}

// Free releases every particle's state through the model.
func (b BeliefSet[S]) Free(m Model[S]) {
	for _, p := range b {
		m.Free(p.State)
	}
}

// AllTerminal reports whether every particle in the set is terminal. The
// terminal-observation invariant (§3, §4.4) means a belief node's
// particles are either all terminal or all non-terminal, so callers may
// check just the first particle; AllTerminal is provided for tests and
// for defensive contexts where that invariant is being verified rather
// than assumed.
func (b BeliefSet[S]) AllTerminal(m Model[S]) bool {
	for _, p := range b {
		if !m.IsTerminal(p.State) {
			return false
		}
	}
	return true
}
