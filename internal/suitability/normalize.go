// Package suitability turns raw cell features into the final weighted score,
// rank, and classification.
package suitability

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/georetail/siteselect/internal/model"
)

// normMid is the value assigned to every cell when a feature is constant
// across the run and min-max scaling is undefined.
const normMid = 50.0

// Normalize min-max scales the raw features to [0,100] over this run's own
// distribution and writes the five MCDA criteria into each cell's Norm map.
// Competition and distance to the nearest major road are inverse criteria:
// the smallest raw value maps to 100. Road accessibility blends road density
// with highway proximity 60/40.
func Normalize(cells []*model.GridCell) error {
	if len(cells) == 0 {
		return eris.New("suitability: no cells to normalize")
	}

	popN := minMax(cells, model.FeatPopDensity, false)
	compN := minMax(cells, model.FeatRetailCount, true)
	amenN := minMax(cells, model.FeatAmenityScore, false)
	econN := minMax(cells, model.FeatBankingCount, false)
	roadDenN := minMax(cells, model.FeatRoadDensity, false)
	hwyProxN := minMax(cells, model.FeatDistMajorRoad, true)

	for i, c := range cells {
		c.Norm[model.CritPopulationDensity] = popN[i]
		c.Norm[model.CritCompetitionLevel] = compN[i]
		c.Norm[model.CritAmenityProximity] = amenN[i]
		c.Norm[model.CritEconomicActivity] = econN[i]
		c.Norm[model.CritRoadAccessibility] = 0.6*roadDenN[i] + 0.4*hwyProxN[i]
	}

	zap.L().Debug("suitability: normalized", zap.Int("cells", len(cells)))
	return nil
}

// minMax scales one raw feature across all cells to [0,100]. With invert set,
// the minimum raw value scores 100 and the maximum scores 0. A constant
// feature yields normMid everywhere.
func minMax(cells []*model.GridCell, key string, invert bool) []float64 {
	lo, hi := cells[0].RawOr(key, 0), cells[0].RawOr(key, 0)
	for _, c := range cells[1:] {
		v := c.RawOr(key, 0)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	out := make([]float64, len(cells))
	span := hi - lo
	for i, c := range cells {
		if span == 0 {
			out[i] = normMid
			continue
		}
		n := (c.RawOr(key, 0) - lo) / span * 100
		if invert {
			n = 100 - n
		}
		out[i] = n
	}
	return out
}
