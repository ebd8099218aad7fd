package chain

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"github.com/aivve/karbowanec/cnbinary"
)

// RandomOutsForAmount is one sampled spendable key-output, ready to be
// offered as a decoy ring member.
type RandomOutsForAmount struct {
	Amount      cnbinary.Amount
	GlobalIndex uint64
	PubKey      cnbinary.PublicKey
}

// randomUnitFloat draws a uniform float in [0, 1) from a cryptographic
// source, the same collaborator the corpus's own ring-member selection
// (block.go/transaction.go's rand.Int(rand.Reader, ...)) uses for picking a
// random index.
func randomUnitFloat() (float64, error) {
	const bits = 53
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), bits))
	if err != nil {
		return 0, err
	}
	return float64(n.Int64()) / float64(int64(1)<<bits), nil
}

// GetRandomOutsByAmount samples up to n spendable key-outputs per amount
// using the triangular distribution of §4.7: draw r uniformly in [0,1), set
// i = floor(sqrt(r) * K) where K is the count of mature outputs, favoring
// indices toward the newer end of the mature range. If the mature pool is
// at or below n, every mature output is returned instead of sampling.
func (m *Manager) GetRandomOutsByAmount(amounts []cnbinary.Amount, n int) (map[cnbinary.Amount][]RandomOutsForAmount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[cnbinary.Amount][]RandomOutsForAmount, len(amounts))
	for _, amount := range amounts {
		k, err := m.findEndOfAllowedIndexLocked(amount)
		if err != nil {
			return nil, fmt.Errorf("chain: find mature output boundary for amount %d: %w", amount, err)
		}
		if k == 0 {
			result[amount] = nil
			continue
		}

		var indexes []uint64
		if uint64(n) >= k {
			indexes = make([]uint64, k)
			for i := uint64(0); i < k; i++ {
				indexes[i] = i
			}
		} else {
			seen := make(map[uint64]bool, n)
			maxAttempts := n*10 + 50
			for attempt := 0; len(indexes) < n && attempt < maxAttempts; attempt++ {
				r, err := randomUnitFloat()
				if err != nil {
					return nil, fmt.Errorf("chain: sample random index: %w", err)
				}
				idx := uint64(math.Sqrt(r) * float64(k))
				if idx >= k {
					idx = k - 1
				}
				if seen[idx] {
					continue
				}
				seen[idx] = true
				indexes = append(indexes, idx)
			}
		}

		outs := make([]RandomOutsForAmount, 0, len(indexes))
		for _, idx := range indexes {
			rec, exists, err := m.keyOutputRecordLocked(amount, idx)
			if err != nil {
				return nil, fmt.Errorf("chain: read sampled output %d at amount %d: %w", idx, amount, err)
			}
			if !exists {
				continue
			}
			outs = append(outs, RandomOutsForAmount{Amount: amount, GlobalIndex: idx, PubKey: rec.PubKey})
		}
		result[amount] = outs
	}
	return result, nil
}
