// Package values produces the integers submitted for sorting.
package values

import (
	"math/rand/v2"
	"slices"
)

// Source produces n values to sort.
type Source interface {
	Values(n int) []int32
}

// Random draws values uniformly from the full int32 range.
type Random struct {
	rng *rand.Rand
}

// NewRandom returns a Random seeded with seed. Equal seeds yield equal
// sequences.
func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Values returns n pseudo-random values. Negative n yields no values.
func (r *Random) Values(n int) []int32 {
	if n <= 0 {
		return []int32{}
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(r.rng.Uint32())
	}
	return out
}

// Fixed always returns a copy of its values, truncated or cycled to n.
type Fixed []int32

func (f Fixed) Values(n int) []int32 {
	if n <= 0 || len(f) == 0 {
		return []int32{}
	}
	if n <= len(f) {
		return slices.Clone(f[:n])
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = f[i%len(f)]
	}
	return out
}
