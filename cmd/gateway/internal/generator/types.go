package generator

import (
	"math/rand"
	"time"
)

// for deterministic values
type Rand interface {
	Float64() float64
	Perm(n int) []int
}

type RealRand struct{ *rand.Rand }

// NewRand returns a seeded source; seed 0 seeds from the clock.
func NewRand(seed int64) RealRand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return RealRand{Rand: rand.New(rand.NewSource(seed))}
}
