package stress

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Sampler draws weighted samples of user indices without replacement, using
// each user's engagement score as its weight. Within one batch no index
// repeats; across batches the same user can reappear.
type Sampler struct {
	weights []float64
	rng     *rand.Rand

	// scratch reused across batches.
	keys []sampleKey
}

type sampleKey struct {
	idx int
	key float64
}

// NewSampler validates the weights and builds a sampler. Weights must be
// strictly positive and finite; weighted sampling without replacement has no
// defined meaning for non-positive weights, so they are rejected up front
// rather than clamped.
func NewSampler(weights []float64, rng *rand.Rand) (*Sampler, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("sampler: no weights")
	}
	for i, w := range weights {
		if w <= 0 || math.IsInf(w, 0) || math.IsNaN(w) {
			return nil, fmt.Errorf("sampler: weight[%d] = %v is not strictly positive and finite", i, w)
		}
	}
	return &Sampler{
		weights: weights,
		rng:     rng,
		keys:    make([]sampleKey, len(weights)),
	}, nil
}

// Sample returns k distinct indices, weight-biased, ordered by draw priority.
// k larger than the universe returns every index.
//
// Uses Efraimidis-Spirakis keys: each index draws u^(1/w) and the k largest
// keys win, which is equivalent to sequential weighted draws without
// replacement.
func (s *Sampler) Sample(k int) []int {
	if k > len(s.weights) {
		k = len(s.weights)
	}
	for i, w := range s.weights {
		s.keys[i] = sampleKey{idx: i, key: math.Pow(s.rng.Float64(), 1/w)}
	}
	sort.Slice(s.keys, func(i, j int) bool { return s.keys[i].key > s.keys[j].key })

	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = s.keys[i].idx
	}
	return out
}
