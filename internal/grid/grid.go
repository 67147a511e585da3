// Package grid builds the square analysis lattice covering the study area.
package grid

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/georetail/siteselect/internal/model"
)

// Build tessellates the study area bounding box into square cells of
// cellSizeM meters anchored at the box's minimum corner, keeps only cells
// intersecting the boundary, and records each cell's boundary coverage
// fraction. Cell IDs start at 1 and increase west-to-east, then
// south-to-north, so the same boundary and cell size always yield the same
// grid.
func Build(sa *model.StudyArea, cellSizeM float64) ([]*model.GridCell, error) {
	if cellSizeM <= 0 {
		return nil, eris.Errorf("grid: cell size must be positive, got %g", cellSizeM)
	}
	if len(sa.Boundary) == 0 || sa.Boundary.Area() <= 0 {
		return nil, eris.Wrap(model.ErrInvalidGeometry, "grid: empty study area boundary")
	}

	b := sa.Boundary.Bounds()
	nx := int(math.Ceil((b.Max.X - b.Min.X) / cellSizeM))
	ny := int(math.Ceil((b.Max.Y - b.Min.Y) / cellSizeM))
	if nx <= 0 || ny <= 0 {
		return nil, eris.Wrap(model.ErrInvalidGeometry, "grid: degenerate boundary extent")
	}

	cellArea := cellSizeM * cellSizeM
	var cells []*model.GridCell
	var id int64 = 1
	for iy := 0; iy < ny; iy++ {
		y0 := b.Min.Y + float64(iy)*cellSizeM
		for ix := 0; ix < nx; ix++ {
			x0 := b.Min.X + float64(ix)*cellSizeM
			square := geom.Polygon([]geom.Path{{
				{X: x0, Y: y0},
				{X: x0 + cellSizeM, Y: y0},
				{X: x0 + cellSizeM, Y: y0 + cellSizeM},
				{X: x0, Y: y0 + cellSizeM},
				{X: x0, Y: y0},
			}})

			overlap := square.Intersection(sa.Boundary)
			cov := 0.0
			if overlap != nil {
				cov = overlap.Area() / cellArea
			}
			if cov <= 0 {
				continue
			}

			c := model.NewGridCell(id, square)
			c.AreaKM2 = cellArea / 1e6
			c.Coverage = math.Min(cov, 1.0)
			cells = append(cells, c)
			id++
		}
	}

	if len(cells) == 0 {
		return nil, eris.Wrap(model.ErrInvalidGeometry, "grid: no cells intersect the boundary")
	}

	zap.L().Info("grid: built",
		zap.String("study_area", sa.Name),
		zap.Float64("cell_size_m", cellSizeM),
		zap.Int("cells", len(cells)))
	return cells, nil
}
