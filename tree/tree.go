// Package tree implements the belief (OR) and action (AND) nodes that
// make up the solver's search tree: VNode owns a particle set and one
// QNode per action; QNode owns one child VNode per distinct observation.
package tree

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/despot-go/despot/bounds"
	"github.com/despot-go/despot/history"
	"github.com/despot-go/despot/particle"
	"github.com/despot-go/despot/streams"
)

// BadObservationError reports a violation of the terminal-observation
// contract (§3, §4.4): a particle's emitted observation disagreed with
// its actual terminal status. This is a bug in a Model plug-in, not a
// recoverable runtime condition, so it is only ever delivered via panic.
type BadObservationError struct {
	ParticleID  int
	Action      int
	Observation uint64
	Terminal    bool
}

func (e *BadObservationError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("particle %d became terminal under action %d but emitted observation %d, not the terminal observation",
			e.ParticleID, e.Action, e.Observation)
	}
	return fmt.Sprintf("particle %d emitted the terminal observation under action %d without being terminal",
		e.ParticleID, e.Action)
}

// QNode is an action (AND) node: it owns one child VNode per distinct
// observation reachable by taking Action from its parent belief.
type QNode[S any] struct {
	Action          int
	Depth           int
	FirstStepReward float64
	Children        map[uint64]*VNode[S]
	L, U            float64
}

// VNode is a belief (OR) node: it owns a particle set and, once expanded,
// one QNode per action.
type VNode[S any] struct {
	Particles     particle.BeliefSet[S]
	Depth         int
	Weight        float64
	L, U          float64
	DefaultAction int
	BestUBAction  int
	QNodes        []*QNode[S]
	InTree        bool
	NTreeNodes    int
	PrunedAction  int
}

// NewRoot seeds a fresh, unexpanded VNode from particles: its bounds and
// default action come from the LowerBound/UpperBound heuristics, and it
// starts out of the tree (InTree=false) until a trial backs it up.
func NewRoot[S any](particles particle.BeliefSet[S], depth int, h *history.History,
	model particle.Model[S], lb bounds.LowerBound[S], ub bounds.UpperBound[S], rs *streams.RandomStreams) *VNode[S] {

	l, defaultAction := lb.Value(h, particles, depth, model, rs)
	u := ub.Value(h, particles, depth, model, rs)

	return &VNode[S]{
		Particles:     particles,
		Depth:         depth,
		Weight:        particles.TotalWeight(),
		L:             l,
		U:             u,
		DefaultAction: defaultAction,
		BestUBAction:  -1,
		PrunedAction:  -1,
	}
}

// IsTerminal reports whether this belief node's particles are all
// terminal. By the terminal-observation invariant, particles in a single
// VNode are either all terminal or all non-terminal, so checking the
// first particle suffices once the set is non-empty.
func (v *VNode[S]) IsTerminal(model particle.Model[S]) bool {
	if len(v.Particles) == 0 {
		return true
	}
	return model.IsTerminal(v.Particles[0].State)
}

// Expand is ExpandOneStep (§4.6.4): for every action, step a copy of each
// particle, partition the results by observation into child VNodes (each
// freshly seeded via lb/ub), and set BestUBAction to the action
// maximizing first-step reward plus discounted child upper bound.
func (v *VNode[S]) Expand(model particle.Model[S], lb bounds.LowerBound[S], ub bounds.UpperBound[S],
	rs *streams.RandomStreams, h *history.History, discount, tiny float64) {

	numActions := model.NumActions()
	v.QNodes = make([]*QNode[S], numActions)

	qstar := math.Inf(-1)
	bestAction := -1

	for a := 0; a < numActions; a++ {
		obsToParticles := make(map[uint64]particle.BeliefSet[S])
		weightedReward := 0.0

		for _, p := range v.Particles {
			s := model.Copy(p.State)
			u := rs.Entry(p.ID, v.Depth)
			r, obs := model.Step(&s, u, a)
			weightedReward += p.Weight * r

			terminal := model.IsTerminal(s)
			isTermObs := obs == model.TerminalObs()
			if terminal != isTermObs {
				panic(&BadObservationError{ParticleID: p.ID, Action: a, Observation: obs, Terminal: terminal})
			}

			obsToParticles[obs] = append(obsToParticles[obs],
				particle.Particle[S]{State: s, ID: p.ID, Weight: p.Weight})
		}

		if v.Weight > 0 {
			weightedReward /= v.Weight
		}

		q := &QNode[S]{
			Action:          a,
			Depth:           v.Depth,
			FirstStepReward: weightedReward,
			Children:        make(map[uint64]*VNode[S], len(obsToParticles)),
		}
		for obs, ps := range obsToParticles {
			q.Children[obs] = NewRoot(ps, v.Depth+1, h, model, lb, ub, rs)
		}
		q.L, q.U = backupQBounds(q, v.Weight)
		v.QNodes[a] = q

		candidate := weightedReward + discount*q.U
		if candidate > qstar+tiny {
			qstar = candidate
			bestAction = a
		}
	}

	if bestAction == -1 {
		panic("tree: expansion produced no best-upper-bound action")
	}
	v.BestUBAction = bestAction
}

// backupQBounds computes a QNode's L and U as the weighted average of its
// children's bounds, weight being each child's share of the parent's
// total weight.
func backupQBounds[S any](q *QNode[S], parentWeight float64) (float64, float64) {
	if len(q.Children) == 0 || parentWeight <= 0 {
		return 0, 0
	}
	ratios := make([]float64, 0, len(q.Children))
	ls := make([]float64, 0, len(q.Children))
	us := make([]float64, 0, len(q.Children))
	for _, c := range q.Children {
		ratios = append(ratios, c.Weight/parentWeight)
		ls = append(ls, c.L)
		us = append(us, c.U)
	}
	return floats.Dot(ratios, ls), floats.Dot(ratios, us)
}

// RefreshBounds recomputes a QNode's L and U as the weighted average of
// its children's current bounds. Called after recursing into one child,
// since that child's bounds may have changed during the recursive backup.
func (q *QNode[S]) RefreshBounds(parentWeight float64) {
	q.L, q.U = backupQBounds(q, parentWeight)
}

// BackupLower is the Trial step-6 backup: L is monotone non-decreasing.
func (v *VNode[S]) BackupLower(reward, discount, childL float64) {
	candidate := reward + discount*childL
	if candidate > v.L {
		v.L = candidate
	}
}

// BackupUpper is the Trial step-7 backup: U is recomputed as the maximum
// over every action's QNode, not inherited from the previously selected
// action, because the upper bound is not monotone across an expansion
// (§4.4, §9).
func (v *VNode[S]) BackupUpper(discount, tiny float64) {
	best := math.Inf(-1)
	bestAction := -1
	for _, q := range v.QNodes {
		if q == nil {
			continue
		}
		candidate := q.FirstStepReward + discount*q.U
		if candidate > best+tiny {
			best = candidate
			bestAction = q.Action
		}
	}
	if bestAction == -1 {
		panic("tree: backup found no best-upper-bound action")
	}
	v.U = best
	v.BestUBAction = bestAction
}

// CheckBounds panics if L exceeds U by more than tiny — Trial step 8's
// sanity check. A violation means a LowerBound/UpperBound plug-in is
// inconsistent.
func (v *VNode[S]) CheckBounds(tiny float64) {
	if v.L > v.U+tiny {
		panic(fmt.Sprintf("tree: L=%g exceeds U=%g by more than tiny=%g at depth %d", v.L, v.U, tiny, v.Depth))
	}
}

// Prune computes, for every descendant reachable only through in-tree
// children, a realizable value penalized by pruningConstant times the
// subtree's size, frees children that are not in_tree, and returns the
// action maximizing that realizable value at the root. It returns -1 only
// when the root is not in_tree or no action has an in_tree child; the
// penalty lowers every action's value but is not compared against any
// baseline, so a large pruningConstant alone never yields -1.
func (v *VNode[S]) Prune(model particle.Model[S], discount, pruningConstant float64) int {
	v.prune(model, discount, pruningConstant)
	return v.PrunedAction
}

func (v *VNode[S]) prune(model particle.Model[S], discount, pruningConstant float64) float64 {
	if !v.InTree || len(v.QNodes) == 0 {
		v.NTreeNodes = 1
		v.PrunedAction = -1
		return v.L
	}

	bestValue := math.Inf(-1)
	bestAction := -1
	totalNodes := 1

	for _, q := range v.QNodes {
		if q == nil {
			continue
		}

		qValue := 0.0
		qNodes := 0
		anyInTree := false
		for obs, child := range q.Children {
			if !child.InTree {
				child.Free(model)
				delete(q.Children, obs)
				continue
			}
			anyInTree = true
			childValue := child.prune(model, discount, pruningConstant)
			ratio := child.Weight / v.Weight
			qValue += ratio * childValue
			qNodes += child.NTreeNodes
		}
		if !anyInTree {
			continue
		}

		value := q.FirstStepReward + discount*qValue - pruningConstant*float64(qNodes)
		totalNodes += qNodes
		if value > bestValue {
			bestValue = value
			bestAction = q.Action
		}
	}

	v.NTreeNodes = totalNodes
	v.PrunedAction = bestAction
	if bestAction == -1 {
		return v.L
	}
	return bestValue
}

// Free releases this VNode's own particles and, recursively, every
// descendant's particles through the model. Called when a subtree is
// discarded by pruning or by UpdateBelief replacing the root.
func (v *VNode[S]) Free(model particle.Model[S]) {
	v.Particles.Free(model)
	for _, q := range v.QNodes {
		if q == nil {
			continue
		}
		for _, c := range q.Children {
			c.Free(model)
		}
	}
}
