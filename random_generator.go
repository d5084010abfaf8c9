package raffle

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand/v2"
	"sync"
)

// SecureRandomGenerator implements secure random number generation using crypto/rand
type SecureRandomGenerator struct{}

// NewSecureRandomGenerator creates a new secure random generator
func NewSecureRandomGenerator() *SecureRandomGenerator {
	return &SecureRandomGenerator{}
}

// GenerateInRange generates a secure random number within the specified range [min, max] (inclusive)
func (g *SecureRandomGenerator) GenerateInRange(min, max int) (int, error) {
	if err := ValidateRange(min, max); err != nil {
		return 0, err
	}
	if min == max {
		return min, nil
	}

	rangeSize := int64(max) - int64(min) + 1
	randomBig, err := rand.Int(rand.Reader, big.NewInt(rangeSize))
	if err != nil {
		return 0, err
	}

	return int(randomBig.Int64()) + min, nil
}

// SeededRandomGenerator is a reproducible generator for tests and previews
type SeededRandomGenerator struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeededRandomGenerator creates a PCG-backed generator from seed
func NewSeededRandomGenerator(seed uint64) *SeededRandomGenerator {
	return &SeededRandomGenerator{
		rng: mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// GenerateInRange generates a number within [min, max] (inclusive)
func (g *SeededRandomGenerator) GenerateInRange(min, max int) (int, error) {
	if err := ValidateRange(min, max); err != nil {
		return 0, err
	}
	if min == max {
		return min, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return min + int(g.rng.Int64N(int64(max)-int64(min)+1)), nil
}
