package extract

import (
	"context"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georetail/siteselect/internal/layer"
	"github.com/georetail/siteselect/internal/model"
)

func testCell(t *testing.T, id int64, x0, y0, size float64) *model.GridCell {
	t.Helper()
	c := model.NewGridCell(id, geom.Polygon([]geom.Path{{
		{X: x0, Y: y0}, {X: x0 + size, Y: y0},
		{X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size}, {X: x0, Y: y0},
	}}))
	c.AreaKM2 = size * size / 1e6
	c.Coverage = 1
	return c
}

type stubExtractor struct {
	name string
	res  []map[string]float64
	err  error
}

func (s *stubExtractor) Name() string { return s.name }
func (s *stubExtractor) Extract(context.Context, []*model.GridCell) ([]map[string]float64, error) {
	return s.res, s.err
}

func TestRunMergesAndDerivesPressure(t *testing.T) {
	t.Parallel()

	cells := []*model.GridCell{
		testCell(t, 1, 0, 0, 500),
		testCell(t, 2, 500, 0, 500),
	}
	pop := &stubExtractor{name: "population", res: []map[string]float64{
		{model.FeatPopulation: 2000},
		{model.FeatPopulation: 0},
	}}
	comp := &stubExtractor{name: "competition", res: []map[string]float64{
		{model.FeatRetailCount: 4},
		{model.FeatRetailCount: 7},
	}}

	require.NoError(t, Run(context.Background(), cells, pop, comp))

	assert.Equal(t, 2000.0, cells[0].Raw[model.FeatPopulation])
	assert.Equal(t, 4.0, cells[0].Raw[model.FeatRetailCount])
	// 4 stores per 2000 people is 2 per thousand.
	assert.InDelta(t, 2.0, cells[0].Raw[model.FeatCompPressure], 1e-9)
	// Zero population means zero pressure, not a division blowup.
	assert.Equal(t, 0.0, cells[1].Raw[model.FeatCompPressure])
}

func TestRunRejectsDegenerateValues(t *testing.T) {
	t.Parallel()

	cells := []*model.GridCell{testCell(t, 1, 0, 0, 500)}
	bad := &stubExtractor{name: "roads", res: []map[string]float64{
		{model.FeatRoadDensity: math.NaN()},
	}}

	err := Run(context.Background(), cells, bad)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrDegenerateFeature))
}

func TestRunPropagatesExtractorFailure(t *testing.T) {
	t.Parallel()

	cells := []*model.GridCell{testCell(t, 1, 0, 0, 500)}
	boom := &stubExtractor{name: "roads", err: eris.New("shapefile corrupt")}
	good := &stubExtractor{name: "population", res: []map[string]float64{{model.FeatPopulation: 1}}}

	err := Run(context.Background(), cells, boom, good)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roads")
	// No partial merge after a failed stage.
	assert.Empty(t, cells[0].Raw)
}

func TestPopulationExtract(t *testing.T) {
	t.Parallel()

	r := &layer.Raster{
		Data: sparse.ZerosDense(2, 2), Nrows: 2, Ncols: 2,
		X0: 0, Y0: 0, CellSize: 500, NoData: -9999,
	}
	// Row 0 is the north row.
	r.Data.Set(10, 0, 0)
	r.Data.Set(20, 0, 1)
	r.Data.Set(30, 1, 0)
	r.Data.Set(40, 1, 1)

	ex, err := NewPopulation(r, nil)
	require.NoError(t, err)

	cells := []*model.GridCell{
		testCell(t, 1, 0, 0, 500),    // exactly the south-west pixel
		testCell(t, 2, 0, 0, 1000),   // the whole raster
		testCell(t, 3, 250, 250, 500), // straddles all four pixels equally
	}
	res, err := ex.Extract(context.Background(), cells)
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.InDelta(t, 30.0, res[0][model.FeatPopulation], 1e-9)
	assert.InDelta(t, 100.0, res[1][model.FeatPopulation], 1e-9)
	assert.InDelta(t, 25.0, res[2][model.FeatPopulation], 1e-9)
	assert.InDelta(t, 30.0/0.25, res[0][model.FeatPopDensity], 1e-9)
}

func TestRoadsExtract(t *testing.T) {
	t.Parallel()

	all := []geom.LineString{
		{{X: -50, Y: 50}, {X: 150, Y: 50}},  // crosses the cell, 100m inside
		{{X: 500, Y: 500}, {X: 600, Y: 500}}, // far away
	}
	major := []geom.LineString{
		{{X: 0, Y: 1000}, {X: 100, Y: 1000}},
	}
	ex := NewRoads(all, major, 100, 10000)

	cells := []*model.GridCell{testCell(t, 1, 0, 0, 100)}
	res, err := ex.Extract(context.Background(), cells)
	require.NoError(t, err)

	assert.InDelta(t, 100.0, res[0][model.FeatRoadLengthM], 1e-9)
	assert.InDelta(t, (100.0/1000)/0.01, res[0][model.FeatRoadDensity], 1e-9)
	assert.InDelta(t, 0.0, res[0][model.FeatMajorRoadLenM], 1e-9)
	// Centroid (50,50) to the horizontal road at y=1000.
	assert.InDelta(t, 950.0, res[0][model.FeatDistMajorRoad], 1e-9)
}

func TestRoadsNoMajorNetwork(t *testing.T) {
	t.Parallel()

	ex := NewRoads(nil, nil, 100, 7500)
	cells := []*model.GridCell{testCell(t, 1, 0, 0, 100)}
	res, err := ex.Extract(context.Background(), cells)
	require.NoError(t, err)

	assert.Equal(t, 7500.0, res[0][model.FeatDistMajorRoad])
	assert.Equal(t, 0.0, res[0][model.FeatRoadLengthM])
}

func TestCompetitionCounts(t *testing.T) {
	t.Parallel()

	retail := []geom.Point{
		{X: 100, Y: 50},  // 50m east of the centroid
		{X: 50, Y: 900},  // 850m north, still inside 1km
		{X: 50, Y: 2000}, // outside
	}
	ex := NewCompetition(retail, 1000)

	cells := []*model.GridCell{testCell(t, 1, 0, 0, 100)}
	res, err := ex.Extract(context.Background(), cells)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res[0][model.FeatRetailCount])
}

func TestAmenitiesScore(t *testing.T) {
	t.Parallel()

	byCat := map[string][]geom.Point{
		"education": {{X: 60, Y: 50}, {X: 50, Y: 200}},
		"banking":   {{X: 50, Y: 550}},
		"food_beverage": {
			{X: 50, Y: 5000}, // outside the radius
		},
	}
	weights := map[string]float64{
		"education": 0.25, "banking": 0.15, "food_beverage": 0.20,
	}
	ex := NewAmenities(byCat, weights, 1000)

	cells := []*model.GridCell{testCell(t, 1, 0, 0, 100)}
	res, err := ex.Extract(context.Background(), cells)
	require.NoError(t, err)

	feats := res[0]
	assert.Equal(t, 2.0, feats["education_count_1km"])
	assert.InDelta(t, 10.0, feats["education_nearest_dist_m"], 1e-9)
	assert.Equal(t, 1.0, feats["banking_count_1km"])
	assert.InDelta(t, 500.0, feats["banking_nearest_dist_m"], 1e-9)
	assert.Equal(t, 0.0, feats["food_beverage_count_1km"])
	// Nearest distance is capped at the search radius when nothing is found.
	assert.Equal(t, 1000.0, feats["food_beverage_nearest_dist_m"])
	assert.InDelta(t, 2*0.25+1*0.15, feats[model.FeatAmenityScore], 1e-9)
}

func TestAmenitiesScoreBitStable(t *testing.T) {
	t.Parallel()

	// Five categories with weights whose partial sums differ across addition
	// orders in the last bit. The blend must come out identical on every
	// extraction, not merely close.
	byCat := map[string][]geom.Point{
		"education":     {{X: 60, Y: 50}},
		"healthcare":    {{X: 50, Y: 150}, {X: 150, Y: 50}},
		"banking":       {{X: 50, Y: 550}},
		"food_beverage": {{X: 200, Y: 200}, {X: 300, Y: 300}, {X: 400, Y: 400}},
		"entertainment": {{X: 50, Y: 700}},
	}
	weights := map[string]float64{
		"education": 0.25, "healthcare": 0.25, "banking": 0.15,
		"food_beverage": 0.20, "entertainment": 0.15,
	}
	cells := []*model.GridCell{testCell(t, 1, 0, 0, 100)}

	ex := NewAmenities(byCat, weights, 1000)
	first, err := ex.Extract(context.Background(), cells)
	require.NoError(t, err)
	want := first[0][model.FeatAmenityScore]

	for i := 0; i < 200; i++ {
		// Fresh extractor each round so map construction order varies too.
		res, err := NewAmenities(byCat, weights, 1000).Extract(context.Background(), cells)
		require.NoError(t, err)
		require.Equal(t, want, res[0][model.FeatAmenityScore], "round %d", i)
	}
}
