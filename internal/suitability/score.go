package suitability

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/georetail/siteselect/internal/config"
	"github.com/georetail/siteselect/internal/model"
)

// Aggregate computes each cell's suitability score as the weighted sum of its
// five normalized criteria. The weight vector is re-validated here so a score
// can never be produced from weights that do not sum to 1.0, and a cell
// missing any criterion fails the run loudly instead of scoring low silently.
func Aggregate(cells []*model.GridCell, weights config.WeightsConfig) error {
	if err := weights.Validate(); err != nil {
		return err
	}
	w := weights.Map()

	for _, c := range cells {
		var score float64
		for _, crit := range model.Criteria {
			v, ok := c.Norm[crit]
			if !ok {
				return eris.Wrapf(model.ErrMissingLayer,
					"suitability: cell %d has no normalized %s", c.ID, crit)
			}
			score += w[crit] * v
		}
		// Guard against floating point drift at the bounds.
		if score < 0 {
			score = 0
		} else if score > 100 {
			score = 100
		}
		c.Score = score
	}
	return nil
}

// Rank orders cells by descending score, breaking ties by ascending cell ID,
// and assigns 1-based ranks. The slice is reordered in place.
func Rank(cells []*model.GridCell) {
	sort.SliceStable(cells, func(i, j int) bool {
		if cells[i].Score != cells[j].Score {
			return cells[i].Score > cells[j].Score
		}
		return cells[i].ID < cells[j].ID
	})
	for i, c := range cells {
		c.Rank = i + 1
	}
}

// Classify assigns each cell its suitability class and the market gap flags.
// The market gap score blends demand (population), low competition, and
// accessibility; a cell is underserved when that score clears the configured
// floor while actual retail presence and population meet their cutoffs.
func Classify(cells []*model.GridCell, th model.ClassThresholds, uc config.UnderservedConfig) {
	var underserved, zeroComp int
	for _, c := range cells {
		c.Class = th.Classify(c.Score)

		gap := 0.4*c.Norm[model.CritPopulationDensity] +
			0.4*c.Norm[model.CritCompetitionLevel] +
			0.2*c.Norm[model.CritRoadAccessibility]
		c.MarketGapScore = gap

		retail := c.RawOr(model.FeatRetailCount, 0)
		c.ZeroCompetition = retail == 0
		c.Underserved = gap > uc.MinGapScore &&
			retail < uc.MaxCompetition &&
			c.RawOr(model.FeatPopulation, 0) > uc.MinPopulation

		if c.Underserved {
			underserved++
		}
		if c.ZeroCompetition {
			zeroComp++
		}
	}

	zap.L().Info("suitability: classified",
		zap.Int("cells", len(cells)),
		zap.Int("underserved", underserved),
		zap.Int("zero_competition", zeroComp))
}
