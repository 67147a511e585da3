package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georetail/siteselect/internal/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func storedCell(id int64, rank int, score float64, underserved bool) *model.GridCell {
	c := model.NewGridCell(id, geom.Polygon([]geom.Path{{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0},
	}}))
	c.Score = score
	c.Rank = rank
	c.Class = model.DefaultClassThresholds().Classify(score)
	c.Underserved = underserved
	c.ZeroCompetition = underserved
	return c
}

func TestSaveAndListRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cells := []*model.GridCell{
		storedCell(1, 1, 90, true),
		storedCell(2, 2, 50, false),
	}
	cfg := map[string]float64{"population_density": 0.30}

	id, err := s.SaveRun(ctx, "central-district", cfg, cells)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	r := runs[0]
	assert.Equal(t, id, r.ID)
	assert.Equal(t, "central-district", r.StudyArea)
	assert.Equal(t, 2, r.CellCount)
	assert.InDelta(t, 70.0, r.MeanScore, 1e-9)
	assert.InDelta(t, 90.0, r.MaxScore, 1e-9)
	assert.Equal(t, 1, r.Underserved)
	assert.Contains(t, r.ConfigJSON, "population_density")
}

func TestTopCells(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cells := []*model.GridCell{
		storedCell(10, 3, 40, false),
		storedCell(11, 1, 95, true),
		storedCell(12, 2, 70, false),
	}
	id, err := s.SaveRun(ctx, "area", nil, cells)
	require.NoError(t, err)

	top, err := s.TopCells(ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)

	assert.Equal(t, int64(11), top[0].CellID)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, model.ClassExcellent, top[0].Class)
	assert.True(t, top[0].Underserved)
	assert.Equal(t, int64(12), top[1].CellID)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.SaveRun(ctx, "a", nil, []*model.GridCell{storedCell(1, 1, 10, false)})
	require.NoError(t, err)
	second, err := s.SaveRun(ctx, "b", nil, []*model.GridCell{storedCell(1, 1, 20, false)})
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Same-second timestamps are possible; both orders keep each run present.
	ids := []string{runs[0].ID, runs[1].ID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
}
