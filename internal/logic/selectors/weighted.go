package selectors

import (
	"math/rand/v2"

	"github.com/patrickwarner/rtbengine/internal/models"
)

// RandSource provides the randomness behind creative selection. This interface
// enables dependency injection for deterministic testing. Implementations used
// by a shared selector must be safe for concurrent use.
type RandSource interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
	// IntN returns a value in [0, n). Panics if n <= 0.
	IntN(n int) int
}

// globalRandSource uses the math/rand/v2 top-level functions, which are safe
// for concurrent use.
type globalRandSource struct{}

func (globalRandSource) Float64() float64 { return rand.Float64() }
func (globalRandSource) IntN(n int) int   { return rand.IntN(n) }

// DefaultRandSource is the production random source.
var DefaultRandSource RandSource = globalRandSource{}

// WeightedSelector chooses an ad with probability proportional to its weight.
type WeightedSelector struct {
	rand RandSource
}

// NewWeightedSelector returns a selector drawing from src. A nil src uses DefaultRandSource.
func NewWeightedSelector(src RandSource) *WeightedSelector {
	if src == nil {
		src = DefaultRandSource
	}
	return &WeightedSelector{rand: src}
}

// SelectAd draws a value in [0, totalWeight) and walks the ads in order,
// returning the first whose cumulative weight exceeds the draw. Zero-weight ads
// are never chosen unless every weight is zero, in which case the choice is uniform.
func (s *WeightedSelector) SelectAd(ads []models.Ad) (models.Ad, bool) {
	if len(ads) == 0 {
		return models.Ad{}, false
	}

	var total float64
	for _, ad := range ads {
		if ad.Weight > 0 {
			total += ad.Weight
		}
	}
	if total <= 0 {
		return ads[s.rand.IntN(len(ads))], true
	}

	draw := s.rand.Float64() * total
	var cumulative float64
	last := -1
	for i, ad := range ads {
		if ad.Weight <= 0 {
			continue
		}
		cumulative += ad.Weight
		last = i
		if cumulative > draw {
			return ad, true
		}
	}
	// Rounding can leave the draw equal to the final cumulative sum.
	return ads[last], true
}
