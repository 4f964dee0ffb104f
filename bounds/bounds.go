// Package bounds implements the LowerBound and UpperBound heuristic
// contracts consulted whenever a VNode is constructed: a realizable value
// from a rollout policy (lower), and a value no less than optimal (upper).
package bounds

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"github.com/despot-go/despot/history"
	"github.com/despot-go/despot/particle"
	"github.com/despot-go/despot/streams"
)

// LowerBound computes a realizable value for a belief together with the
// action a safe default policy would take there.
type LowerBound[S any] interface {
	Value(h *history.History, particles particle.BeliefSet[S], depth int,
		model particle.Model[S], rs *streams.RandomStreams) (value float64, defaultAction int)
}

// UpperBound computes a value that is never less than the belief's true
// optimal value.
type UpperBound[S any] interface {
	Value(h *history.History, particles particle.BeliefSet[S], depth int,
		model particle.Model[S], rs *streams.RandomStreams) float64
}

// RolloutPolicy picks an action for a single state, used by the lower
// bound variants to simulate a fixed policy forward.
type RolloutPolicy[S any] interface {
	Action(state S) int
}

// modeState returns the state with the greatest total weight across
// particles, breaking ties by which state's first particle appears
// earliest in particles — deterministic, unlike ranging a map.
func modeState[S comparable](particles particle.BeliefSet[S]) S {
	tally := make(map[S]float64, len(particles))
	order := make([]S, 0, len(particles))
	for _, p := range particles {
		if _, seen := tally[p.State]; !seen {
			order = append(order, p.State)
		}
		tally[p.State] += p.Weight
	}

	mode := order[0]
	best := tally[mode]
	for _, s := range order[1:] {
		if tally[s] > best {
			best = tally[s]
			mode = s
		}
	}
	return mode
}

// rollout simulates state forward under policy, using particle id's own
// stream starting at depth, accumulating discounted reward until the
// state is terminal or searchDepth is reached.
func rollout[S any](model particle.Model[S], rs *streams.RandomStreams, policy RolloutPolicy[S],
	state S, id, depth int, discount float64, searchDepth int) float64 {

	s := model.Copy(state)
	defer model.Free(s)

	value := 0.0
	discFactor := 1.0
	for d := depth; d < searchDepth; d++ {
		if model.IsTerminal(s) {
			break
		}
		a := policy.Action(s)
		u := rs.Entry(id, d)
		r, _ := model.Step(&s, u, a)
		value += discFactor * r
		discFactor *= discount
	}
	return value
}

// ModePolicyBound is a LowerBound that rolls out a fixed policy from
// each particle and reports the most frequent state's action as the
// default action — the "mode-policy" variant of spec §4.3.
type ModePolicyBound[S comparable] struct {
	Policy      RolloutPolicy[S]
	Discount    float64
	SearchDepth int
}

func (b ModePolicyBound[S]) Value(h *history.History, particles particle.BeliefSet[S], depth int,
	model particle.Model[S], rs *streams.RandomStreams) (float64, int) {

	if len(particles) == 0 {
		return 0, 0
	}

	defaultAction := b.Policy.Action(modeState(particles))

	vals := make([]float64, len(particles))
	weights := make([]float64, len(particles))
	for i, p := range particles {
		vals[i] = rollout(model, rs, b.Policy, p.State, p.ID, depth, b.Discount, b.SearchDepth)
		weights[i] = p.Weight
	}
	return stat.Mean(vals, weights), defaultAction
}

// uniformPolicy picks an action uniformly at random, used by
// RandomPolicyBound.
type uniformPolicy[S any] struct {
	model particle.Model[S]
	rng   *rand.Rand
}

func (u uniformPolicy[S]) Action(S) int {
	return u.rng.Intn(u.model.NumActions())
}

// RandomPolicyBound is a LowerBound that rolls out a uniformly random
// policy — the "random-policy" variant of spec §4.3. It is deterministic
// given (history, particles, depth, streams, seeds) because its rng is
// seeded from the RandomStreams' model seed, not from wall-clock state.
type RandomPolicyBound[S comparable] struct {
	Discount    float64
	SearchDepth int
}

func (b RandomPolicyBound[S]) Value(h *history.History, particles particle.BeliefSet[S], depth int,
	model particle.Model[S], rs *streams.RandomStreams) (float64, int) {

	if len(particles) == 0 {
		return 0, 0
	}

	policy := uniformPolicy[S]{model: model, rng: rand.New(rand.NewSource(rs.ModelSeed() ^ uint64(depth)))}

	defaultAction := policy.Action(modeState(particles))

	vals := make([]float64, len(particles))
	weights := make([]float64, len(particles))
	for i, p := range particles {
		vals[i] = rollout(model, rs, policy, p.State, p.ID, depth, b.Discount, b.SearchDepth)
		weights[i] = p.Weight
	}
	return stat.Mean(vals, weights), defaultAction
}

// Heuristic is a per-(state, depth) upper-value estimate, typically a
// problem-specific closed form (e.g. "best possible reward reachable in
// the remaining depth").
type Heuristic[S any] func(state S, depth int) float64

// StochasticBound is the general-case UpperBound: a weighted average,
// over particles, of Heuristic(state, depth).
type StochasticBound[S any] struct {
	Heuristic Heuristic[S]
}

func (b StochasticBound[S]) Value(h *history.History, particles particle.BeliefSet[S], depth int,
	model particle.Model[S], rs *streams.RandomStreams) float64 {

	if len(particles) == 0 {
		return 0
	}
	vals := make([]float64, len(particles))
	weights := make([]float64, len(particles))
	for i, p := range particles {
		vals[i] = b.Heuristic(p.State, depth)
		weights[i] = p.Weight
	}
	return stat.Mean(vals, weights)
}

// NonStochasticBound is the UpperBound variant for deterministic
// transition models: since every particle sharing a state follows the
// same single trajectory, the bound is the heuristic's value on one
// representative particle rather than a weighted average.
type NonStochasticBound[S any] struct {
	Heuristic Heuristic[S]
}

func (b NonStochasticBound[S]) Value(h *history.History, particles particle.BeliefSet[S], depth int,
	model particle.Model[S], rs *streams.RandomStreams) float64 {

	if len(particles) == 0 {
		return 0
	}
	return b.Heuristic(particles[0].State, depth)
}
