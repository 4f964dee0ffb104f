// Package solver implements the anytime trial/backup engine: repeated
// scenario-sampled lookahead from a root belief, bounded by a wall-clock
// budget, that selects the next action to execute.
package solver

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/slices"

	"github.com/despot-go/despot/belief"
	"github.com/despot-go/despot/bounds"
	"github.com/despot-go/despot/history"
	"github.com/despot-go/despot/particle"
	"github.com/despot-go/despot/streams"
	"github.com/despot-go/despot/tree"
)

// Config is the solver's global configuration table (spec §6).
type Config struct {
	NumParticles    int     `json:"num_particles"`
	SearchDepth     int     `json:"search_depth"`
	Discount        float64 `json:"discount"`
	PruningConstant float64 `json:"pruning_constant"`
	XI              float64 `json:"excess_uncertainty_xi"`
	Tiny            float64 `json:"tiny"`
	Inf             float64 `json:"inf"`
}

// DefaultConfig returns reasonable defaults for a small-to-medium belief
// tree search.
func DefaultConfig() Config {
	return Config{
		NumParticles:    500,
		SearchDepth:     90,
		Discount:        0.95,
		PruningConstant: 0,
		XI:              0.95,
		Tiny:            1e-6,
		Inf:             1e10,
	}
}

// Validate checks the configuration is within the ranges the search
// algorithm assumes, in particular resolving the open question in
// spec §9(a): XI must lie strictly within (0,1), since XI >= 1 makes the
// root stopping test (1-XI)(U-L) > Tiny unsatisfiable and the search
// would never run a single trial.
func (c Config) Validate() error {
	if c.NumParticles <= 0 {
		return fmt.Errorf("solver: num_particles must be positive, got %d", c.NumParticles)
	}
	if c.SearchDepth <= 0 {
		return fmt.Errorf("solver: search_depth must be positive, got %d", c.SearchDepth)
	}
	if c.Discount <= 0 || c.Discount > 1 {
		return fmt.Errorf("solver: discount must be in (0,1], got %g", c.Discount)
	}
	if c.PruningConstant < 0 {
		return fmt.Errorf("solver: pruning_constant must be >= 0, got %g", c.PruningConstant)
	}
	if c.XI <= 0 || c.XI >= 1 {
		return fmt.Errorf("solver: excess_uncertainty_xi must be in (0,1), got %g", c.XI)
	}
	if c.Tiny <= 0 {
		return fmt.Errorf("solver: tiny must be positive, got %g", c.Tiny)
	}
	return nil
}

// Solver is the trial engine: it owns the belief tree exclusively through
// its root VNode and drives Model/LowerBound/UpperBound/BeliefUpdate to
// grow, back up, and prune it.
type Solver[S any] struct {
	model   particle.Model[S]
	lb      bounds.LowerBound[S]
	ub      bounds.UpperBound[S]
	updater belief.Updater[S]
	streams *streams.RandomStreams
	config  Config

	hist *history.History
	root *tree.VNode[S]

	initialPool    []S
	initialWeights []float64
}

// New constructs a Solver and calls Init to seed its root from the
// initial belief (pool, weights).
func New[S any](model particle.Model[S], pool []S, weights []float64,
	lb bounds.LowerBound[S], ub bounds.UpperBound[S], updater belief.Updater[S],
	rs *streams.RandomStreams, config Config) (*Solver[S], error) {

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.NumParticles > rs.NumStreams() {
		return nil, fmt.Errorf("solver: num_particles=%d exceeds random streams table's NumStreams=%d",
			config.NumParticles, rs.NumStreams())
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("solver: initial belief pool must be non-empty")
	}

	s := &Solver[S]{
		model:          model,
		lb:             lb,
		ub:             ub,
		updater:        updater,
		streams:        rs,
		config:         config,
		hist:           history.New(),
		initialPool:    pool,
		initialWeights: weights,
	}
	s.Init()
	return s, nil
}

// Init allocates K scenarios from the initial belief pool via the belief
// updater and installs them as a fresh root.
func (s *Solver[S]) Init() {
	particles := s.updater.Sample(s.initialPool, s.initialWeights, s.config.NumParticles)
	s.root = tree.NewRoot(particles, 0, s.hist, s.model, s.lb, s.ub, s.streams)
}

// Reset reinitializes the belief updater, truncates the history, and
// reseeds the root from the initial belief, exactly as a freshly
// constructed Solver with identical inputs would start.
func (s *Solver[S]) Reset() {
	s.updater.Reset()
	s.hist.Truncate(0)
	if s.root != nil {
		s.root.Free(s.model)
	}
	s.Init()
}

// Finished reports whether every root particle is terminal.
func (s *Solver[S]) Finished() bool {
	return s.root.IsTerminal(s.model)
}

// GetHistory returns the solver's (action, observation) history.
func (s *Solver[S]) GetHistory() *history.History {
	return s.hist
}

// Search runs trials from the root until maxTime elapses or the root's
// excess uncertainty falls below the stopping threshold, then returns the
// action to execute and the total number of nodes newly added to the tree
// across all trials (the sum of trial's return values).
func (s *Solver[S]) Search(maxTime time.Duration) (action int, nTrials int) {
	start := time.Now()

	for time.Since(start) < maxTime && s.excessUncertaintyGate() {
		nTrials += s.trial(s.root)
	}

	if s.config.PruningConstant > 0 {
		pruned := s.root.Prune(s.model, s.config.Discount, s.config.PruningConstant)
		if pruned == -1 {
			return s.root.DefaultAction, nTrials
		}
		return pruned, nTrials
	}

	if !s.root.InTree {
		return s.root.DefaultAction, nTrials
	}
	return s.bestLowerBoundAction(), nTrials
}

// UpdateBelief commits (action, observation): it asks the belief updater
// for the posterior over the root's particles, destroys the entire old
// tree, and installs a fresh root from the posterior.
func (s *Solver[S]) UpdateBelief(action int, observation uint64) {
	newParticles := s.updater.Update(s.root.Particles, s.config.NumParticles, action, observation)
	s.root.Free(s.model)
	s.hist.Push(action, observation)
	s.root = tree.NewRoot(newParticles, 0, s.hist, s.model, s.lb, s.ub, s.streams)
}

// excessUncertainty computes EU(L, U, lRoot, uRoot, depth) = (U-L) *
// discount^(-depth) - xi*(uRoot-lRoot), the discount-normalized bound gap
// minus a root-referenced baseline.
func excessUncertainty(l, u, lRoot, uRoot float64, depth int, discount, xi float64) float64 {
	return (u-l)*math.Pow(discount, -float64(depth)) - xi*(uRoot-lRoot)
}

// excessUncertaintyGate is the Search outer-loop stopping test (§4.6.2).
// At the root, depth is 0 and both node and root bounds are the root's
// own — per spec §9(a) this is documented (possibly surprising) source
// behavior, not a bug to silently "fix": it reduces algebraically to
// (1-xi)(U-L) > tiny, which is why Config.Validate rejects xi outside
// (0,1).
func (s *Solver[S]) excessUncertaintyGate() bool {
	eu := excessUncertainty(s.root.L, s.root.U, s.root.L, s.root.U, 0, s.config.Discount, s.config.XI)
	return eu > s.config.Tiny
}

// weightedExcessUncertainty is WEUO(c) = (c.weight/parentWeight) *
// EU(c.L, c.U, root.L, root.U, c.depth), used to pick which observation
// branch is worth recursing into.
func weightedExcessUncertainty[S any](child *tree.VNode[S], parentWeight float64, root *tree.VNode[S], discount, xi float64) float64 {
	eu := excessUncertainty(child.L, child.U, root.L, root.U, child.Depth, discount, xi)
	return (child.Weight / parentWeight) * eu
}

// trial is one root-to-fringe descent with backup (§4.6.3). It returns
// the number of nodes newly counted as in_tree on this descent.
func (s *Solver[S]) trial(node *tree.VNode[S]) int {
	if node.Depth >= s.config.SearchDepth || node.IsTerminal(s.model) {
		return 0
	}

	if node.QNodes == nil {
		node.Expand(s.model, s.lb, s.ub, s.streams, s.hist, s.config.Discount, s.config.Tiny)
	}

	aStar := node.BestUBAction
	q := node.QNodes[aStar]

	oStar, bestWEUO := s.bestObservation(q, node)

	added := 0
	if bestWEUO > 0 {
		child := q.Children[oStar]
		s.hist.Push(aStar, oStar)
		added = s.trial(child)
		s.hist.Pop()
		q.RefreshBounds(node.Weight)
	}

	node.BackupLower(q.FirstStepReward, s.config.Discount, q.L)
	node.BackupUpper(s.config.Discount, s.config.Tiny)
	node.CheckBounds(s.config.Tiny)

	if !node.InTree {
		node.InTree = true
		added++
	}
	return added
}

// bestObservation picks the child of q maximizing weighted excess
// uncertainty relative to the root's bounds (§4.6.3 step 4), breaking
// ties by smallest observation id so the choice is deterministic rather
// than dependent on Go's randomized map iteration order.
func (s *Solver[S]) bestObservation(q *tree.QNode[S], parent *tree.VNode[S]) (uint64, float64) {
	obsIDs := make([]uint64, 0, len(q.Children))
	for obs := range q.Children {
		obsIDs = append(obsIDs, obs)
	}
	slices.Sort(obsIDs)

	best := math.Inf(-1)
	var bestObs uint64
	first := true
	for _, obs := range obsIDs {
		child := q.Children[obs]
		score := weightedExcessUncertainty(child, parent.Weight, s.root, s.config.Discount, s.config.XI)
		if first || score > best {
			best = score
			bestObs = obs
			first = false
		}
	}
	return bestObs, best
}

// bestLowerBoundAction returns the root action maximizing r_a + discount
// * qnode.L (§4.6.2's default non-pruned, in-tree exit path).
func (s *Solver[S]) bestLowerBoundAction() int {
	best := math.Inf(-1)
	bestAction := s.root.DefaultAction
	for _, q := range s.root.QNodes {
		if q == nil {
			continue
		}
		candidate := q.FirstStepReward + s.config.Discount*q.L
		if candidate > best {
			best = candidate
			bestAction = q.Action
		}
	}
	return bestAction
}
