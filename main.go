package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/despot-go/despot/belief"
	"github.com/despot-go/despot/bounds"
	"github.com/despot-go/despot/examples/runner"
	"github.com/despot-go/despot/examples/tiger"
	"github.com/despot-go/despot/solver"
	"github.com/despot-go/despot/streams"
)

func main() {
	var (
		steps        = flag.Int("steps", 20, "maximum number of decision steps")
		searchTime   = flag.Duration("search-time", 200*time.Millisecond, "per-decision search budget")
		numParticles = flag.Int("particles", 200, "number of scenarios sampled at each belief")
		seed         = flag.Uint64("seed", 1, "random streams seed")
	)
	flag.Parse()

	model := tiger.Model{}
	rs := streams.New(*numParticles+10, 40, *seed)

	lb := bounds.ModePolicyBound[tiger.State]{
		Policy:      tiger.NewFixedPolicy(int64(*seed)),
		Discount:    0.95,
		SearchDepth: 20,
	}
	ub := bounds.StochasticBound[tiger.State]{Heuristic: func(s tiger.State, depth int) float64 {
		return 10
	}}
	updater := belief.NewParticleFilter[tiger.State](model, rs)

	cfg := solver.DefaultConfig()
	cfg.NumParticles = *numParticles
	cfg.SearchDepth = 20
	cfg.Discount = 0.95
	cfg.XI = 0.9

	pool, weights := tiger.InitialBelief()
	sv, err := solver.New[tiger.State](model, pool, weights, lb, ub, updater, rs, cfg)
	if err != nil {
		fmt.Println("could not build solver:", err)
		return
	}

	result := runner.Run[tiger.State](sv, model, pool, weights, *steps, *searchTime, *seed, false)
	fmt.Printf("reached goal: %v, total reward: %.2f\n", result.ReachedGoal, result.TotalReward)
}
