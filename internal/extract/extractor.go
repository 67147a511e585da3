// Package extract computes raw features for every grid cell. Each extractor
// owns a disjoint set of feature keys; the extractors run concurrently and
// their results are merged into the cells only after all of them finish, so
// no cell is written from two goroutines.
package extract

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/georetail/siteselect/internal/model"
)

// Extractor computes one family of raw features. Extract returns one feature
// map per input cell, index-aligned with cells.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, cells []*model.GridCell) ([]map[string]float64, error)
}

// Run executes all extractors in parallel, waits for every one of them, and
// merges their results into the cells. A single failure cancels the rest and
// fails the whole stage. After the merge it derives competition_pressure,
// which needs both the retail count and the population.
func Run(ctx context.Context, cells []*model.GridCell, extractors ...Extractor) error {
	results := make([][]map[string]float64, len(extractors))

	g, ctx := errgroup.WithContext(ctx)
	for i, ex := range extractors {
		i, ex := i, ex
		g.Go(func() error {
			start := time.Now()
			res, err := ex.Extract(ctx, cells)
			if err != nil {
				return eris.Wrapf(err, "extract: %s", ex.Name())
			}
			if len(res) != len(cells) {
				return eris.Errorf("extract: %s returned %d results for %d cells",
					ex.Name(), len(res), len(cells))
			}
			results[i] = res
			zap.L().Info("extract: extractor finished",
				zap.String("extractor", ex.Name()),
				zap.Int("cells", len(cells)),
				zap.Duration("took", time.Since(start)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, ex := range extractors {
		for j, feats := range results[i] {
			for k, v := range feats {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return eris.Wrapf(model.ErrDegenerateFeature,
						"extract: %s produced %g for feature %s on cell %d",
						ex.Name(), v, k, cells[j].ID)
				}
				cells[j].Raw[k] = v
			}
		}
	}

	for _, c := range cells {
		pop := c.RawOr(model.FeatPopulation, 0)
		retail := c.RawOr(model.FeatRetailCount, 0)
		pressure := 0.0
		if pop > 0 {
			pressure = retail / (pop / 1000)
		}
		c.Raw[model.FeatCompPressure] = pressure
	}
	return nil
}
