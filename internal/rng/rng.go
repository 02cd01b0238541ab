// Package rng provides an explicit random-number state object for parameter
// initialization and dropout masks.
//
// Every Source is independent; there is no process-wide seed. Distributions are
// drawn through gonum's distuv over a PCG generator.
package rng

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// maskStream is the PCG stream selector used for dropout masks.
const maskStream = 0x9e3779b97f4a7c15

// Source is a seedable random-number generator. It implements rand.Source.
// It is not safe for concurrent use.
type Source struct {
	seed uint64
	pcg  *rand.PCG
}

// New creates a Source seeded with seed.
func New(seed uint64) *Source {
	s := &Source{pcg: rand.NewPCG(0, 0)}
	s.Seed(seed)
	return s
}

// Seed resets the generator so that it replays the sequence for seed.
func (s *Source) Seed(seed uint64) {
	s.seed = seed
	s.pcg.Seed(seed, seed^maskStream)
}

// CurrentSeed returns the seed last passed to Seed.
func (s *Source) CurrentSeed() uint64 {
	return s.seed
}

// Uint64 returns the next raw value.
func (s *Source) Uint64() uint64 {
	return s.pcg.Uint64()
}

// Float32 returns a uniform value in [0, 1).
func (s *Source) Float32() float32 {
	return float32(s.Uint64()>>40) / (1 << 24)
}

// FillUniform fills dst with values drawn uniformly from [lo, hi).
func (s *Source) FillUniform(dst []float32, lo, hi float32) {
	d := distuv.Uniform{Min: float64(lo), Max: float64(hi), Src: s}
	for i := range dst {
		dst[i] = float32(d.Rand())
	}
}

// FillInt fills dst with integers drawn uniformly from [lo, hi).
func (s *Source) FillInt(dst []float32, lo, hi int) {
	if hi <= lo {
		for i := range dst {
			dst[i] = float32(lo)
		}
		return
	}
	r := rand.New(s)
	for i := range dst {
		dst[i] = float32(lo + r.IntN(hi-lo))
	}
}

// FillNormal fills dst with values drawn from N(mean, std²).
func (s *Source) FillNormal(dst []float32, mean, std float32) {
	d := distuv.Normal{Mu: float64(mean), Sigma: float64(std), Src: s}
	for i := range dst {
		dst[i] = float32(d.Rand())
	}
}

// XavierUniform fills dst from U(-l, l) with l = sqrt(6 / (fanIn + fanOut)).
func (s *Source) XavierUniform(dst []float32, fanIn, fanOut int) {
	l := float32(math.Sqrt(6 / float64(max(fanIn+fanOut, 1))))
	s.FillUniform(dst, -l, l)
}

// XavierNormal fills dst from N(0, 2 / (fanIn + fanOut)).
func (s *Source) XavierNormal(dst []float32, fanIn, fanOut int) {
	s.FillNormal(dst, 0, float32(math.Sqrt(2/float64(max(fanIn+fanOut, 1)))))
}

// HeUniform fills dst from U(-l, l) with l = sqrt(6 / fanIn).
func (s *Source) HeUniform(dst []float32, fanIn int) {
	l := float32(math.Sqrt(6 / float64(max(fanIn, 1))))
	s.FillUniform(dst, -l, l)
}

// HeNormal fills dst from N(0, 2 / fanIn).
func (s *Source) HeNormal(dst []float32, fanIn int) {
	s.FillNormal(dst, 0, float32(math.Sqrt(2/float64(max(fanIn, 1)))))
}

// BernoulliMask fills dst with an inverted-dropout mask derived only from seed:
// each element is scale with probability keep and 0 otherwise. The same seed
// always yields the same mask.
func BernoulliMask(seed uint64, dst []float32, keep, scale float32) {
	m := New(seed)
	d := distuv.Bernoulli{P: float64(keep), Src: m}
	for i := range dst {
		dst[i] = float32(d.Rand()) * scale
	}
}
