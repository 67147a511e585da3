package layer

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/georetail/siteselect/internal/model"
)

// LoadBoundary reads the study area boundary from a GeoJSON or shapefile
// layer, validates it, and reprojects it into the grid spatial reference.
// Multi-part boundaries are merged into a single polygon.
func LoadBoundary(path, name string, gridSR *proj.SR) (*model.StudyArea, error) {
	geoms, srcSR, err := loadGeoms(path)
	if err != nil {
		return nil, err
	}

	var poly geom.Polygon
	for _, g := range geoms {
		pg, ok := g.(geom.Polygonal)
		if !ok {
			continue
		}
		for _, p := range pg.Polygons() {
			poly = append(poly, p...)
		}
	}
	if len(poly) == 0 {
		return nil, eris.Wrapf(model.ErrInvalidGeometry, "layer: no polygon in boundary %s", path)
	}
	if selfIntersects(poly) {
		return nil, eris.Wrapf(model.ErrInvalidGeometry, "layer: boundary %s has self-intersecting rings", path)
	}

	t, err := srcSR.NewTransform(gridSR)
	if err != nil {
		return nil, eris.Wrapf(model.ErrCRSMismatch, "layer: no transform for boundary %s: %v", path, err)
	}
	g, err := poly.Transform(t)
	if err != nil {
		return nil, eris.Wrapf(model.ErrCRSMismatch, "layer: reproject boundary %s: %v", path, err)
	}
	bnd, ok := g.(geom.Polygon)
	if !ok {
		return nil, eris.Wrapf(model.ErrInvalidGeometry, "layer: boundary %s did not survive reprojection", path)
	}
	if bnd.Area() <= 0 {
		return nil, eris.Wrapf(model.ErrInvalidGeometry, "layer: boundary %s has zero area", path)
	}

	sa := &model.StudyArea{Name: name, Boundary: bnd, SR: gridSR}
	zap.L().Info("layer: boundary loaded",
		zap.String("path", path),
		zap.String("study_area", name),
		zap.Int("rings", len(bnd)),
		zap.Float64("area_km2", sa.AreaKM2()))
	return sa, nil
}

// selfIntersects reports whether any ring of p has two non-adjacent segments
// that cross. Shared endpoints between adjacent segments are allowed.
func selfIntersects(p geom.Polygon) bool {
	for _, ring := range p {
		segs := ringSegments(ring)
		n := len(segs)
		for i := 0; i < n; i++ {
			for j := i + 2; j < n; j++ {
				if i == 0 && j == n-1 {
					// First and last segments share the ring closure point.
					continue
				}
				if segmentsCross(segs[i][0], segs[i][1], segs[j][0], segs[j][1]) {
					return true
				}
			}
		}
	}
	return false
}

func ringSegments(ring geom.Path) [][2]geom.Point {
	pts := []geom.Point(ring)
	// Drop an explicit closing point so the implicit closure is not doubled.
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	segs := make([][2]geom.Point, 0, len(pts))
	for i := range pts {
		segs = append(segs, [2]geom.Point{pts[i], pts[(i+1)%len(pts)]})
	}
	return segs
}

// segmentsCross reports whether segments ab and cd properly intersect.
func segmentsCross(a, b, c, d geom.Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, b geom.Point) float64 {
	v := (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	if math.Abs(v) < 1e-12 {
		return 0
	}
	return v
}
