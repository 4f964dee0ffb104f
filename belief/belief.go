// Package belief implements the BeliefUpdate contract: importance-weighted
// resampling with replacement of an initial pool into K scenarios, and
// posterior resampling after a committed (action, observation).
package belief

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/despot-go/despot/particle"
	"github.com/despot-go/despot/streams"
)

// Updater is the belief-update contract: sample K scenarios from an
// initial pool, compute the posterior after an (action, observation), and
// reset internal randomness between episodes.
type Updater[S any] interface {
	Sample(pool []S, weights []float64, k int) particle.BeliefSet[S]
	Update(particles particle.BeliefSet[S], k int, action int, observation uint64) particle.BeliefSet[S]
	Reset()
}

// ParticleFilter is the reference Updater: it draws the K-scenario pool
// by importance-weighted resampling with replacement, reinvigorating
// automatically since any surviving particle can be drawn more than once.
// Stream ids, not pool membership, are what get assigned without
// replacement, so that no two scenarios share a random stream.
type ParticleFilter[S any] struct {
	model   particle.Model[S]
	streams *streams.RandomStreams
	rng     *rand.Rand
}

// NewParticleFilter returns a ParticleFilter seeded from the belief
// updater's derived seed in rs.
func NewParticleFilter[S any](model particle.Model[S], rs *streams.RandomStreams) *ParticleFilter[S] {
	return &ParticleFilter[S]{
		model:   model,
		streams: rs,
		rng:     rand.New(rand.NewSource(rs.BeliefSeed())),
	}
}

// Sample draws k particles from pool using importance weights (with
// replacement — a pool smaller than k, as every example model's initial
// belief is, must still be able to fill k scenarios), assigning each a
// distinct stream id drawn without replacement from [0, NumStreams).
func (f *ParticleFilter[S]) Sample(pool []S, weights []float64, k int) particle.BeliefSet[S] {
	if len(pool) == 0 {
		panic("belief: cannot sample from an empty pool")
	}
	if k > f.streams.NumStreams() {
		panic(fmt.Sprintf("belief: k=%d exceeds NumStreams=%d", k, f.streams.NumStreams()))
	}

	normalized := append([]float64(nil), weights...)
	floats.Scale(1/floats.Sum(normalized), normalized)

	streamIDs := f.rng.Perm(f.streams.NumStreams())[:k]

	cat := distuv.NewCategorical(normalized, f.rng)
	out := make(particle.BeliefSet[S], k)
	for i := range out {
		id := int(cat.Rand())
		out[i] = particle.Particle[S]{
			State:  f.model.Copy(pool[id]),
			ID:     streamIDs[i],
			Weight: 1.0 / float64(k),
		}
	}
	return out
}

// Update re-simulates particles one step under action using the belief
// updater's own random stream, keeps those whose resulting observation
// matches observation, and resamples (with reinvigoration if needed) back
// up to k particles with freshly assigned stream ids.
func (f *ParticleFilter[S]) Update(particles particle.BeliefSet[S], k int, action int, observation uint64) particle.BeliefSet[S] {
	matched := make([]S, 0, len(particles))
	weights := make([]float64, 0, len(particles))

	for _, p := range particles {
		s := f.model.Copy(p.State)
		u := f.rng.Float64()
		_, obs := f.model.Step(&s, u, action)
		if obs == observation {
			matched = append(matched, s)
			weights = append(weights, p.Weight)
		} else {
			f.model.Free(s)
		}
	}

	if len(matched) == 0 {
		panic(fmt.Sprintf("belief: particle deprivation — no particle produced observation %d under action %d", observation, action))
	}

	floats.Scale(1/floats.Sum(weights), weights)
	return f.resample(matched, weights, k)
}

// resample draws k particles from states by importance-weighted sampling
// with replacement (reinvigoration: any surviving particle, including one
// held back by a thin posterior, can be drawn more than once), assigning
// freshly drawn stream ids.
func (f *ParticleFilter[S]) resample(states []S, weights []float64, k int) particle.BeliefSet[S] {
	streamIDs := f.rng.Perm(f.streams.NumStreams())
	out := make(particle.BeliefSet[S], k)

	cat := distuv.NewCategorical(weights, f.rng)
	for i := range out {
		id := int(cat.Rand())
		out[i] = particle.Particle[S]{
			State:  f.model.Copy(states[id]),
			ID:     streamIDs[i%len(streamIDs)],
			Weight: 1.0 / float64(k),
		}
	}

	for _, s := range states {
		f.model.Free(s)
	}
	return out
}

// Reset reseeds the filter's internal randomness from the belief
// updater's derived seed, so that Reset(); Sample(...) reproduces what a
// freshly constructed ParticleFilter would sample.
func (f *ParticleFilter[S]) Reset() {
	f.rng = rand.New(rand.NewSource(f.streams.BeliefSeed()))
}
