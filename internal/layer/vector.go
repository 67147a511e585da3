// Package layer loads the read-only geospatial input layers (boundary polygon,
// population raster, road network, POI points) and reconciles their coordinate
// reference systems with the analysis grid.
package layer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/georetail/siteselect/internal/model"
)

// wgs84Proj4 is the spatial reference of GeoJSON files per RFC 7946.
const wgs84Proj4 = "+proj=longlat +datum=WGS84 +no_defs"

// WGS84 returns the longitude/latitude spatial reference used by GeoJSON.
func WGS84() (*proj.SR, error) {
	sr, err := proj.Parse(wgs84Proj4)
	if err != nil {
		return nil, eris.Wrap(err, "layer: parse WGS84 proj4")
	}
	return sr, nil
}

// geoJSONFeature is the subset of a GeoJSON feature needed to pull geometries.
type geoJSONFeature struct {
	Geometry json.RawMessage `json:"geometry"`
}

// geoJSONDoc covers FeatureCollection, Feature, and bare geometry documents.
type geoJSONDoc struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
	Geometry json.RawMessage  `json:"geometry"`
}

// loadGeoms reads every geometry from a .geojson/.json or .shp file and
// returns them along with the layer's source spatial reference.
func loadGeoms(path string) ([]geom.Geom, *proj.SR, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return loadShapefile(path)
	case ".geojson", ".json":
		return loadGeoJSON(path)
	default:
		return nil, nil, eris.Wrapf(model.ErrMissingLayer, "layer: unsupported format %s", path)
	}
}

func loadGeoJSON(path string) ([]geom.Geom, *proj.SR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(model.ErrMissingLayer, "layer: read %s: %v", path, err)
	}

	var doc geoJSONDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, eris.Wrapf(err, "layer: parse GeoJSON %s", path)
	}

	var raws []json.RawMessage
	switch doc.Type {
	case "FeatureCollection":
		for _, f := range doc.Features {
			if len(f.Geometry) > 0 {
				raws = append(raws, f.Geometry)
			}
		}
	case "Feature":
		if len(doc.Geometry) > 0 {
			raws = append(raws, doc.Geometry)
		}
	default:
		// Bare geometry document.
		raws = append(raws, data)
	}

	var geoms []geom.Geom
	for _, raw := range raws {
		g, err := geojson.Decode(raw)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "layer: decode geometry in %s", path)
		}
		geoms = append(geoms, g)
	}

	sr, err := WGS84()
	if err != nil {
		return nil, nil, err
	}
	return geoms, sr, nil
}

func loadShapefile(path string) ([]geom.Geom, *proj.SR, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, nil, eris.Wrapf(model.ErrMissingLayer, "layer: open shapefile %s: %v", path, err)
	}
	defer dec.Close()

	sr, err := dec.SR()
	if err != nil {
		return nil, nil, eris.Wrapf(model.ErrCRSMismatch, "layer: read spatial reference for %s: %v", path, err)
	}

	var geoms []geom.Geom
	for {
		g, _, more := dec.DecodeRowFields()
		if !more {
			break
		}
		if g != nil {
			geoms = append(geoms, g)
		}
	}
	if err := dec.Error(); err != nil {
		return nil, nil, eris.Wrapf(err, "layer: decode shapefile %s", path)
	}

	return geoms, sr, nil
}

// reproject transforms geometries from their source spatial reference into the
// grid's. A failed transform is a CRS mismatch.
func reproject(geoms []geom.Geom, from, to *proj.SR, path string) ([]geom.Geom, error) {
	t, err := from.NewTransform(to)
	if err != nil {
		return nil, eris.Wrapf(model.ErrCRSMismatch, "layer: no transform for %s: %v", path, err)
	}
	out := make([]geom.Geom, 0, len(geoms))
	for _, g := range geoms {
		gg, err := g.Transform(t)
		if err != nil {
			return nil, eris.Wrapf(model.ErrCRSMismatch, "layer: reproject %s: %v", path, err)
		}
		out = append(out, gg)
	}
	return out, nil
}

// LoadLines loads a line layer (e.g. the road network), reprojected to the
// grid spatial reference. MultiLineStrings are flattened into their parts.
func LoadLines(path string, gridSR *proj.SR) ([]geom.LineString, error) {
	geoms, srcSR, err := loadGeoms(path)
	if err != nil {
		return nil, err
	}
	geoms, err = reproject(geoms, srcSR, gridSR, path)
	if err != nil {
		return nil, err
	}

	var lines []geom.LineString
	var skipped int
	for _, g := range geoms {
		switch l := g.(type) {
		case geom.LineString:
			if len(l) >= 2 {
				lines = append(lines, l)
			}
		case geom.MultiLineString:
			for _, part := range l {
				if len(part) >= 2 {
					lines = append(lines, part)
				}
			}
		default:
			skipped++
		}
	}
	if skipped > 0 {
		zap.L().Debug("layer: skipped non-line geometries",
			zap.String("path", path), zap.Int("skipped", skipped))
	}
	return lines, nil
}

// LoadPoints loads a point layer (POIs), reprojected to the grid spatial
// reference. Polygonal features collapse to their centroids, matching how the
// POI layers treat building footprints.
func LoadPoints(path string, gridSR *proj.SR) ([]geom.Point, error) {
	geoms, srcSR, err := loadGeoms(path)
	if err != nil {
		return nil, err
	}
	geoms, err = reproject(geoms, srcSR, gridSR, path)
	if err != nil {
		return nil, err
	}

	var pts []geom.Point
	for _, g := range geoms {
		switch p := g.(type) {
		case geom.Point:
			pts = append(pts, p)
		case geom.MultiPoint:
			pts = append(pts, p...)
		case geom.Polygonal:
			pts = append(pts, p.Centroid())
		}
	}
	return pts, nil
}
