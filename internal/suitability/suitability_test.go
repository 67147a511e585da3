package suitability

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georetail/siteselect/internal/config"
	"github.com/georetail/siteselect/internal/model"
)

func rawCell(id int64, raw map[string]float64) *model.GridCell {
	c := model.NewGridCell(id, geom.Polygon([]geom.Path{{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0},
	}}))
	c.AreaKM2 = 0.25
	c.Coverage = 1
	for k, v := range raw {
		c.Raw[k] = v
	}
	return c
}

func defaultWeights() config.WeightsConfig {
	return config.WeightsConfig{
		PopulationDensity: 0.30,
		RoadAccessibility: 0.20,
		CompetitionLevel:  0.15,
		AmenityProximity:  0.20,
		EconomicActivity:  0.15,
	}
}

func TestNormalizeMinMaxBounds(t *testing.T) {
	t.Parallel()

	cells := []*model.GridCell{
		rawCell(1, map[string]float64{model.FeatPopDensity: 100}),
		rawCell(2, map[string]float64{model.FeatPopDensity: 400}),
		rawCell(3, map[string]float64{model.FeatPopDensity: 1000}),
	}
	require.NoError(t, Normalize(cells))

	assert.InDelta(t, 0.0, cells[0].Norm[model.CritPopulationDensity], 1e-9)
	assert.InDelta(t, 100.0/3, cells[1].Norm[model.CritPopulationDensity], 1e-9)
	assert.InDelta(t, 100.0, cells[2].Norm[model.CritPopulationDensity], 1e-9)
}

func TestNormalizeInvertsCompetition(t *testing.T) {
	t.Parallel()

	cells := []*model.GridCell{
		rawCell(1, map[string]float64{model.FeatRetailCount: 0}),
		rawCell(2, map[string]float64{model.FeatRetailCount: 10}),
	}
	require.NoError(t, Normalize(cells))

	// No competitors is the best possible competition criterion.
	assert.InDelta(t, 100.0, cells[0].Norm[model.CritCompetitionLevel], 1e-9)
	assert.InDelta(t, 0.0, cells[1].Norm[model.CritCompetitionLevel], 1e-9)
}

func TestNormalizeConstantFeature(t *testing.T) {
	t.Parallel()

	cells := []*model.GridCell{
		rawCell(1, map[string]float64{model.FeatAmenityScore: 2.5}),
		rawCell(2, map[string]float64{model.FeatAmenityScore: 2.5}),
	}
	require.NoError(t, Normalize(cells))

	assert.InDelta(t, 50.0, cells[0].Norm[model.CritAmenityProximity], 1e-9)
	assert.InDelta(t, 50.0, cells[1].Norm[model.CritAmenityProximity], 1e-9)
}

func TestNormalizeRoadAccessibilityBlend(t *testing.T) {
	t.Parallel()

	cells := []*model.GridCell{
		rawCell(1, map[string]float64{model.FeatRoadDensity: 0, model.FeatDistMajorRoad: 0}),
		rawCell(2, map[string]float64{model.FeatRoadDensity: 10, model.FeatDistMajorRoad: 2000}),
	}
	require.NoError(t, Normalize(cells))

	// Cell 1: worst density (0) but best highway proximity (100).
	assert.InDelta(t, 0.4*100, cells[0].Norm[model.CritRoadAccessibility], 1e-9)
	// Cell 2: best density, worst proximity.
	assert.InDelta(t, 0.6*100, cells[1].Norm[model.CritRoadAccessibility], 1e-9)
}

func TestNormalizeEmpty(t *testing.T) {
	t.Parallel()
	assert.Error(t, Normalize(nil))
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	c := rawCell(1, nil)
	for _, crit := range model.Criteria {
		c.Norm[crit] = 80
	}
	cells := []*model.GridCell{c}

	require.NoError(t, Aggregate(cells, defaultWeights()))
	// All criteria equal means the score equals them regardless of weights.
	assert.InDelta(t, 80.0, c.Score, 1e-9)
}

func TestAggregateInvalidWeights(t *testing.T) {
	t.Parallel()

	c := rawCell(1, nil)
	for _, crit := range model.Criteria {
		c.Norm[crit] = 50
	}
	bad := defaultWeights()
	bad.PopulationDensity = 0.50

	err := Aggregate([]*model.GridCell{c}, bad)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvalidWeights))
}

func TestAggregateMissingCriterion(t *testing.T) {
	t.Parallel()

	c := rawCell(7, nil)
	c.Norm[model.CritPopulationDensity] = 50
	// The other four criteria are absent.

	err := Aggregate([]*model.GridCell{c}, defaultWeights())
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrMissingLayer))
	assert.Contains(t, err.Error(), "cell 7")
}

func TestRank(t *testing.T) {
	t.Parallel()

	a := rawCell(1, nil)
	a.Score = 70
	b := rawCell(2, nil)
	b.Score = 90
	c := rawCell(3, nil)
	c.Score = 70

	cells := []*model.GridCell{a, b, c}
	Rank(cells)

	assert.Equal(t, int64(2), cells[0].ID)
	assert.Equal(t, 1, cells[0].Rank)
	// Tied scores break by ascending ID.
	assert.Equal(t, int64(1), cells[1].ID)
	assert.Equal(t, 2, cells[1].Rank)
	assert.Equal(t, int64(3), cells[2].ID)
	assert.Equal(t, 3, cells[2].Rank)
}

func TestClassifyFlags(t *testing.T) {
	t.Parallel()

	uc := config.UnderservedConfig{MinGapScore: 60, MaxCompetition: 3, MinPopulation: 1000}
	th := model.DefaultClassThresholds()

	// High demand, no competition, good access: underserved.
	gap := rawCell(1, map[string]float64{
		model.FeatRetailCount: 0,
		model.FeatPopulation:  5000,
	})
	gap.Norm[model.CritPopulationDensity] = 90
	gap.Norm[model.CritCompetitionLevel] = 100
	gap.Norm[model.CritRoadAccessibility] = 70
	gap.Score = 80

	// Same gap profile but the neighborhood is already served.
	served := rawCell(2, map[string]float64{
		model.FeatRetailCount: 8,
		model.FeatPopulation:  5000,
	})
	served.Norm[model.CritPopulationDensity] = 90
	served.Norm[model.CritCompetitionLevel] = 100
	served.Norm[model.CritRoadAccessibility] = 70
	served.Score = 40

	// Too few people to count as a gap.
	empty := rawCell(3, map[string]float64{
		model.FeatRetailCount: 0,
		model.FeatPopulation:  200,
	})
	empty.Norm[model.CritPopulationDensity] = 90
	empty.Norm[model.CritCompetitionLevel] = 100
	empty.Norm[model.CritRoadAccessibility] = 70
	empty.Score = 20

	Classify([]*model.GridCell{gap, served, empty}, th, uc)

	assert.InDelta(t, 0.4*90+0.4*100+0.2*70, gap.MarketGapScore, 1e-9)
	assert.True(t, gap.Underserved)
	assert.True(t, gap.ZeroCompetition)
	assert.Equal(t, model.ClassExcellent, gap.Class)

	assert.False(t, served.Underserved)
	assert.False(t, served.ZeroCompetition)
	assert.Equal(t, model.ClassModerate, served.Class)

	assert.False(t, empty.Underserved)
	assert.True(t, empty.ZeroCompetition)
	assert.Equal(t, model.ClassLow, empty.Class)
}
