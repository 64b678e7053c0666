package songvocab

import (
	"math"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// MaxContextWindow is the largest window the model supports.
	MaxContextWindow = 131072
	// gbPerMaxContext is the RAM observed to be needed for MaxContextWindow tokens.
	gbPerMaxContext = 58.0
)

// CalculateSafeContextWindow estimates how many tokens fit in availableRAMGB,
// scaled by safetyFactor, floored to a power of two and capped at MaxContextWindow.
func CalculateSafeContextWindow(availableRAMGB float64, safetyFactor float64) (int, error) {
	tokensPerGB := MaxContextWindow / gbPerMaxContext
	safeTokens := math.Floor(availableRAMGB * tokensPerGB * safetyFactor)
	if math.IsNaN(safeTokens) || safeTokens < 1 {
		return 0, errors.Errorf("not enough RAM for any context window: %vGB with safety factor %v", availableRAMGB, safetyFactor)
	}

	safeTokens = math.Min(safeTokens, MaxContextWindow)

	powerOf2 := int(math.Pow(2, math.Floor(math.Log2(safeTokens))))
	ret := powerOf2

	log.Debug().
		Float64("available_ram_gb", availableRAMGB).
		Float64("tokens_per_gb", tokensPerGB).
		Float64("safe_tokens", safeTokens).
		Int("power_of_2", powerOf2).
		Int("context_window", ret).
		Msg("songvocab: context window")

	return ret, nil
}
