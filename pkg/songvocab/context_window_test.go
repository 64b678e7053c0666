package songvocab

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSafeContextWindow(t *testing.T) {
	tests := []struct {
		ram      float64
		factor   float64
		expected int
	}{
		{16, 0.8, 16384},
		{32, 0.8, 32768},
		{60, 1.0, MaxContextWindow},
		{40, 1.0, 65536},
		{512, 0.8, MaxContextWindow},
		{0.01, 0.8, 16},
		{1e20, 0.8, MaxContextWindow},
		{math.MaxFloat64, 1.0, MaxContextWindow},
	}
	for _, tt := range tests {
		cw, err := CalculateSafeContextWindow(tt.ram, tt.factor)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, cw, "ram=%v factor=%v", tt.ram, tt.factor)
	}
}

func TestCalculateSafeContextWindow_NotEnoughRAM(t *testing.T) {
	_, err := CalculateSafeContextWindow(0, 0.8)
	assert.Error(t, err)
	_, err = CalculateSafeContextWindow(16, 0)
	assert.Error(t, err)
	_, err = CalculateSafeContextWindow(math.NaN(), 0.8)
	assert.Error(t, err)
}
