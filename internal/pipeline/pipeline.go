// Package pipeline orchestrates a full suitability analysis: load layers,
// build the grid, extract features in parallel, score, rank, classify,
// export, and persist the run.
package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/georetail/siteselect/internal/config"
	"github.com/georetail/siteselect/internal/export"
	"github.com/georetail/siteselect/internal/extract"
	"github.com/georetail/siteselect/internal/grid"
	"github.com/georetail/siteselect/internal/layer"
	"github.com/georetail/siteselect/internal/model"
	"github.com/georetail/siteselect/internal/store"
	"github.com/georetail/siteselect/internal/suitability"
)

// Result summarizes a finished run.
type Result struct {
	RunID       string        `json:"run_id,omitempty"`
	StudyArea   string        `json:"study_area"`
	Cells       int           `json:"cells"`
	MeanScore   float64       `json:"mean_score"`
	MaxScore    float64       `json:"max_score"`
	Underserved int           `json:"underserved"`
	Outputs     []string      `json:"outputs"`
	Took        time.Duration `json:"took"`
}

// Run executes the whole analysis under an immutable configuration. Stages
// communicate only through the cell slice; a failure in any stage aborts the
// run.
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gridSR, err := proj.Parse(cfg.Grid.Proj4)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse grid proj4 %q", cfg.Grid.Proj4)
	}

	area, err := layer.LoadBoundary(cfg.Inputs.BoundaryPath, cfg.Inputs.StudyAreaName, gridSR)
	if err != nil {
		return nil, err
	}

	cells, err := grid.Build(area, cfg.Grid.CellSizeM)
	if err != nil {
		return nil, err
	}

	extractors, err := buildExtractors(cfg, area, gridSR)
	if err != nil {
		return nil, err
	}
	if err := extract.Run(ctx, cells, extractors...); err != nil {
		return nil, err
	}

	if err := suitability.Normalize(cells); err != nil {
		return nil, err
	}
	if err := suitability.Aggregate(cells, cfg.Weights); err != nil {
		return nil, err
	}
	suitability.Rank(cells)
	suitability.Classify(cells, cfg.Classify.Thresholds, cfg.Underserved)

	outputs, err := writeOutputs(cfg, cells)
	if err != nil {
		return nil, err
	}

	res := summarize(cells, cfg.Inputs.StudyAreaName)
	res.Outputs = outputs
	res.Took = time.Since(start)

	if cfg.Store.Path != "" {
		id, err := persist(ctx, cfg, cells)
		if err != nil {
			return nil, err
		}
		res.RunID = id
	}

	zap.L().Info("pipeline: run complete",
		zap.String("study_area", res.StudyArea),
		zap.Int("cells", res.Cells),
		zap.Float64("mean_score", res.MeanScore),
		zap.Duration("took", res.Took))
	return res, nil
}

// Rerank loads a previously exported grid, rescales nothing, and re-applies
// aggregation, ranking, and classification under the current weights. The
// stored normalized criteria make this possible without the input layers.
func Rerank(ctx context.Context, cfg *config.Config, gridPath string) (*Result, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cells, err := export.ReadGridGeoJSON(gridPath)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, eris.Errorf("pipeline: no cells in %s", gridPath)
	}

	if err := suitability.Aggregate(cells, cfg.Weights); err != nil {
		return nil, err
	}
	suitability.Rank(cells)
	suitability.Classify(cells, cfg.Classify.Thresholds, cfg.Underserved)

	outputs, err := writeOutputs(cfg, cells)
	if err != nil {
		return nil, err
	}

	res := summarize(cells, cfg.Inputs.StudyAreaName)
	res.Outputs = outputs
	res.Took = time.Since(start)

	if cfg.Store.Path != "" {
		id, err := persist(ctx, cfg, cells)
		if err != nil {
			return nil, err
		}
		res.RunID = id
	}
	return res, nil
}

// buildExtractors wires the four feature extractors from the configured input
// layers. Layers with no configured path run empty: their features stay at
// explicit zeros rather than failing the run.
func buildExtractors(cfg *config.Config, area *model.StudyArea, gridSR *proj.SR) ([]extract.Extractor, error) {
	var raster *layer.Raster
	if cfg.Inputs.PopulationRaster != "" {
		r, err := layer.LoadASCIIGrid(cfg.Inputs.PopulationRaster)
		if err != nil {
			return nil, err
		}
		raster = r
	} else {
		zap.L().Warn("pipeline: no population raster configured, population features will be zero")
		raster = emptyRaster(area)
	}
	popEx, err := extract.NewPopulation(raster, gridSR)
	if err != nil {
		return nil, err
	}

	var roads, major []geom.LineString
	if cfg.Inputs.RoadsPath != "" {
		if roads, err = layer.LoadLines(cfg.Inputs.RoadsPath, gridSR); err != nil {
			return nil, err
		}
	} else {
		zap.L().Warn("pipeline: no road network configured, road features will be zero")
	}
	if cfg.Inputs.MajorRoadsPath != "" {
		if major, err = layer.LoadLines(cfg.Inputs.MajorRoadsPath, gridSR); err != nil {
			return nil, err
		}
	}
	b := area.Boundary.Bounds()
	diagonal := math.Hypot(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
	roadsEx := extract.NewRoads(roads, major, cfg.Grid.CellSizeM, diagonal)

	var retail []geom.Point
	byCategory := make(map[string][]geom.Point)
	for cat, path := range cfg.Inputs.POIPaths {
		pts, err := layer.LoadPoints(path, gridSR)
		if err != nil {
			return nil, err
		}
		if cat == "retail" {
			retail = pts
			continue
		}
		byCategory[cat] = pts
	}
	compEx := extract.NewCompetition(retail, cfg.Grid.SearchRadiusM)
	amenEx := extract.NewAmenities(byCategory, cfg.Amenity.CategoryWeights, cfg.Grid.SearchRadiusM)

	return []extract.Extractor{popEx, roadsEx, compEx, amenEx}, nil
}

// emptyRaster is a single zero-valued pixel covering the study area, used
// when no population raster is configured.
func emptyRaster(area *model.StudyArea) *layer.Raster {
	b := area.Boundary.Bounds()
	size := math.Max(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
	r := &layer.Raster{
		Nrows: 1, Ncols: 1,
		X0: b.Min.X, Y0: b.Min.Y,
		CellSize: size, NoData: -9999,
	}
	r.Data = sparse.ZerosDense(1, 1)
	return r
}

func writeOutputs(cfg *config.Config, cells []*model.GridCell) ([]string, error) {
	dir := cfg.Export.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "pipeline: create output dir %s", dir)
	}

	type job struct {
		name  string
		write func(string) error
	}
	jobs := []job{
		{"suitability_grid.geojson", func(p string) error { return export.WriteGridGeoJSON(p, cells) }},
		{"top_sites.geojson", func(p string) error { return export.WriteTopNGeoJSON(p, cells, cfg.Export.TopN) }},
		{"underserved_areas.geojson", func(p string) error { return export.WriteUnderservedGeoJSON(p, cells) }},
		{"top_sites.csv", func(p string) error { return export.WriteTopNCSV(p, cells, cfg.Export.TopN) }},
		{"top_sites.xlsx", func(p string) error { return export.WriteTopNXLSX(p, cells, cfg.Export.TopN) }},
		{"summary.txt", func(p string) error { return export.WriteSummaryReport(p, cells, cfg) }},
	}

	paths := make([]string, 0, len(jobs))
	for _, j := range jobs {
		p := filepath.Join(dir, j.name)
		if err := j.write(p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func persist(ctx context.Context, cfg *config.Config, cells []*model.GridCell) (string, error) {
	s, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return "", err
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		return "", err
	}
	return s.SaveRun(ctx, cfg.Inputs.StudyAreaName, cfg, cells)
}

func summarize(cells []*model.GridCell, studyArea string) *Result {
	res := &Result{StudyArea: studyArea, Cells: len(cells)}
	var sum float64
	for _, c := range cells {
		sum += c.Score
		if c.Score > res.MaxScore {
			res.MaxScore = c.Score
		}
		if c.Underserved {
			res.Underserved++
		}
	}
	if len(cells) > 0 {
		res.MeanScore = sum / float64(len(cells))
	}
	return res
}
