package extract

import (
	"context"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"

	"github.com/georetail/siteselect/internal/layer"
	"github.com/georetail/siteselect/internal/model"
)

// Population sums the population raster under each cell, weighting each pixel
// by its overlap fraction with the cell.
type Population struct {
	raster *layer.Raster
	// toRaster converts cell geometry into raster coordinates. Nil when the
	// raster carries no spatial reference and is assumed to be in grid
	// coordinates already.
	toRaster proj.Transformer
}

// NewPopulation prepares the population extractor, building a grid-to-raster
// transform when the raster declares its own spatial reference.
func NewPopulation(r *layer.Raster, gridSR *proj.SR) (*Population, error) {
	e := &Population{raster: r}
	if r.SR != nil {
		t, err := gridSR.NewTransform(r.SR)
		if err != nil {
			return nil, eris.Wrapf(model.ErrCRSMismatch, "extract: population raster transform: %v", err)
		}
		e.toRaster = t
	}
	return e, nil
}

func (e *Population) Name() string { return "population" }

func (e *Population) Extract(ctx context.Context, cells []*model.GridCell) ([]map[string]float64, error) {
	out := make([]map[string]float64, len(cells))
	for i, c := range cells {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "extract: population canceled")
		}

		poly := c.Geom
		if e.toRaster != nil {
			g, err := c.Geom.Transform(e.toRaster)
			if err != nil {
				return nil, eris.Wrapf(model.ErrCRSMismatch,
					"extract: reproject cell %d to raster: %v", c.ID, err)
			}
			var ok bool
			if poly, ok = g.(geom.Polygon); !ok {
				return nil, eris.Wrapf(model.ErrInvalidGeometry,
					"extract: cell %d lost polygon shape in raster transform", c.ID)
			}
		}

		pop := e.raster.SampleSum(poly)
		out[i] = map[string]float64{
			model.FeatPopulation: pop,
			model.FeatPopDensity: pop / c.AreaKM2,
		}
	}
	return out, nil
}
