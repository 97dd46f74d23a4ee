package dataset

import (
	"fmt"
	"math/rand"
	"strings"
)

const emailDomain = "fitbod.me"

// GenerateEmails produces n distinct synthetic addresses under fitbod.me.
// Local parts are 8-letter combinations drawn from a shuffled alphabet, so a
// single call never repeats an address.
func GenerateEmails(n int, rng *rand.Rand) ([]string, error) {
	const k = 8
	letters := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	rng.Shuffle(len(letters), func(i, j int) { letters[i], letters[j] = letters[j], letters[i] })

	// Walk k-combinations of the shuffled alphabet in lexicographic index
	// order.
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	out := make([]string, 0, n)
	for {
		var b strings.Builder
		for _, i := range idx {
			b.WriteByte(letters[i])
		}
		out = append(out, b.String()+"@"+emailDomain)
		if len(out) == n {
			return out, nil
		}

		// Advance to the next combination.
		i := k - 1
		for i >= 0 && idx[i] == len(letters)-k+i {
			i--
		}
		if i < 0 {
			return nil, fmt.Errorf("generate emails: exhausted combinations before %d addresses", n)
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
