package raffle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureRandomGenerator(t *testing.T) {
	gen := NewSecureRandomGenerator()

	t.Run("range_correctness", func(t *testing.T) {
		for range 1000 {
			result, err := gen.GenerateInRange(1, 100)
			require.NoError(t, err)
			require.GreaterOrEqual(t, result, 1)
			require.LessOrEqual(t, result, 100)
		}
	})

	t.Run("single_value_range", func(t *testing.T) {
		result, err := gen.GenerateInRange(7, 7)
		require.NoError(t, err)
		assert.Equal(t, 7, result)
	})

	t.Run("invalid_range", func(t *testing.T) {
		_, err := gen.GenerateInRange(10, 1)
		assert.Equal(t, ErrInvalidRange, err)
	})
}

func TestSeededRandomGenerator(t *testing.T) {
	t.Run("same_seed_same_sequence", func(t *testing.T) {
		a := NewSeededRandomGenerator(42)
		b := NewSeededRandomGenerator(42)

		for range 100 {
			x, err := a.GenerateInRange(1, 1_000_000)
			require.NoError(t, err)
			y, err := b.GenerateInRange(1, 1_000_000)
			require.NoError(t, err)
			require.Equal(t, x, y)
		}
	})

	t.Run("covers_small_range", func(t *testing.T) {
		gen := NewSeededRandomGenerator(7)
		seen := make(map[int]bool)
		for range 500 {
			n, err := gen.GenerateInRange(1, 5)
			require.NoError(t, err)
			seen[n] = true
		}
		assert.Len(t, seen, 5)
	})

	t.Run("invalid_range", func(t *testing.T) {
		_, err := NewSeededRandomGenerator(1).GenerateInRange(3, 2)
		assert.Equal(t, ErrInvalidRange, err)
	})
}
