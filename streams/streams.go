// Package streams implements the pre-sampled, per-scenario random number
// tables that let the solver compare hypothetical action sequences on
// equal stochastic footing.
package streams

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// Seed offsets used to derive the world, belief-updater, and model seeds
// from a RandomStreams' construction seed. Chosen past numStreams so they
// never collide with a per-stream seed (seed ^ s, s in [0, numStreams)).
const (
	worldOffset  = 0
	beliefOffset = 1
	modelOffset  = 2
)

// RandomStreams is an immutable numStreams x length table of reals in
// [0, 1), one row per scenario. Entry(s, d) is the scenario s's random
// draw at depth d. The table never changes after construction, which is
// what lets two branches of search replay the same particle under two
// different action sequences and still compare fairly.
type RandomStreams struct {
	table      *tensor.Dense
	numStreams int
	length     int
	worldSeed  uint64
	beliefSeed uint64
	modelSeed  uint64
}

// New builds a RandomStreams by seeding one PRNG per stream with
// seed XOR s and drawing length uniform(0,1) reals from it.
func New(numStreams, length int, seed uint64) *RandomStreams {
	if numStreams <= 0 {
		panic(fmt.Sprintf("streams: numStreams must be positive, got %d", numStreams))
	}
	if length <= 0 {
		panic(fmt.Sprintf("streams: length must be positive, got %d", length))
	}

	data := make([]float64, numStreams*length)
	for s := 0; s < numStreams; s++ {
		src := rand.NewSource(seed ^ uint64(s))
		u := distuv.Uniform{Min: 0, Max: 1, Src: src}
		row := data[s*length : (s+1)*length]
		for d := range row {
			row[d] = u.Rand()
		}
	}

	table := tensor.New(tensor.WithShape(numStreams, length), tensor.WithBacking(data))

	return &RandomStreams{
		table:      table,
		numStreams: numStreams,
		length:     length,
		worldSeed:  seed ^ uint64(numStreams+worldOffset),
		beliefSeed: seed ^ uint64(numStreams+beliefOffset),
		modelSeed:  seed ^ uint64(numStreams+modelOffset),
	}
}

// NumStreams returns the number of independent scenarios in the table.
func (r *RandomStreams) NumStreams() int { return r.numStreams }

// Length returns the number of draws available per scenario.
func (r *RandomStreams) Length() int { return r.length }

// Entry returns the scenario stream's random draw at depth.
func (r *RandomStreams) Entry(stream, depth int) float64 {
	if stream < 0 || stream >= r.numStreams {
		panic(fmt.Sprintf("streams: stream %d out of range [0,%d)", stream, r.numStreams))
	}
	if depth < 0 || depth >= r.length {
		panic(fmt.Sprintf("streams: depth %d out of range [0,%d)", depth, r.length))
	}
	v, err := r.table.At(stream, depth)
	if err != nil {
		panic(fmt.Sprintf("streams: %v", err))
	}
	return v.(float64)
}

// WorldSeed returns the derived seed reserved for the world/model's own
// stochastic bookkeeping, independent of any particle's stream.
func (r *RandomStreams) WorldSeed() uint64 { return r.worldSeed }

// BeliefSeed returns the derived seed reserved for the belief updater.
func (r *RandomStreams) BeliefSeed() uint64 { return r.beliefSeed }

// ModelSeed returns the derived seed reserved for the model's own use
// (e.g. rollout policies that need randomness beyond a single particle's
// stream).
func (r *RandomStreams) ModelSeed() uint64 { return r.modelSeed }
