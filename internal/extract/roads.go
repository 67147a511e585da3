package extract

import (
	"context"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/rotisserie/eris"

	"github.com/georetail/siteselect/internal/model"
)

// Roads measures network accessibility per cell: total road length clipped to
// the cell, major road length, and centroid distance to the nearest major
// road segment.
type Roads struct {
	all      *rtree.Rtree
	major    *rtree.Rtree
	hasMajor bool
	// maxDist bounds the expanding nearest-neighbor search and is reported
	// when no major road exists at all. Callers pass the study area diagonal.
	maxDist float64
	// seedRadius is the first search half-width for the nearest major road.
	seedRadius float64
}

// NewRoads indexes both road layers. seedRadius is typically the grid cell
// size; maxDist is the study area bounding box diagonal.
func NewRoads(all, major []geom.LineString, seedRadius, maxDist float64) *Roads {
	e := &Roads{
		all:        rtree.NewTree(25, 50),
		major:      rtree.NewTree(25, 50),
		hasMajor:   len(major) > 0,
		maxDist:    maxDist,
		seedRadius: seedRadius,
	}
	for _, l := range all {
		e.all.Insert(l)
	}
	for _, l := range major {
		e.major.Insert(l)
	}
	return e
}

func (e *Roads) Name() string { return "roads" }

func (e *Roads) Extract(ctx context.Context, cells []*model.GridCell) ([]map[string]float64, error) {
	out := make([]map[string]float64, len(cells))
	for i, c := range cells {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "extract: roads canceled")
		}

		lenM := clippedLength(e.all, c.Geom)
		majorLenM := clippedLength(e.major, c.Geom)

		dist := e.maxDist
		if e.hasMajor {
			dist = e.nearestMajorDist(c.Centroid)
		}

		out[i] = map[string]float64{
			model.FeatRoadLengthM:   lenM,
			model.FeatRoadDensity:   (lenM / 1000) / c.AreaKM2,
			model.FeatMajorRoadLenM: majorLenM,
			model.FeatDistMajorRoad: dist,
		}
	}
	return out, nil
}

// clippedLength sums the length of every indexed line clipped to the cell.
func clippedLength(idx *rtree.Rtree, cell geom.Polygon) float64 {
	var sum float64
	for _, hit := range idx.SearchIntersect(cell.Bounds()) {
		l, ok := hit.(geom.LineString)
		if !ok {
			continue
		}
		if clipped := l.Clip(cell); clipped != nil {
			sum += clipped.Length()
		}
	}
	return sum
}

// nearestMajorDist finds the distance from p to the closest major road. It
// widens a bounding box search until candidates appear, then refines with an
// exact distance pass over a box sized by the best candidate, since the first
// bbox hit is not necessarily the nearest geometry.
func (e *Roads) nearestMajorDist(p geom.Point) float64 {
	for r := e.seedRadius; ; r *= 2 {
		hits := e.major.SearchIntersect(searchBox(p, r))
		if len(hits) == 0 {
			if r > e.maxDist {
				return e.maxDist
			}
			continue
		}
		best := math.Inf(1)
		for _, hit := range hits {
			if d := hit.(geom.LineString).Distance(p); d < best {
				best = d
			}
		}
		// Anything closer than best must intersect a box of half-width best.
		if best > r {
			for _, hit := range e.major.SearchIntersect(searchBox(p, best)) {
				if d := hit.(geom.LineString).Distance(p); d < best {
					best = d
				}
			}
		}
		return best
	}
}

func searchBox(p geom.Point, r float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: p.X - r, Y: p.Y - r},
		Max: geom.Point{X: p.X + r, Y: p.Y + r},
	}
}
