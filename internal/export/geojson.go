// Package export writes the finished analysis to disk: the full scored grid
// and its subsets as GeoJSON, ranked tables as CSV and XLSX, and a plain-text
// run summary. It can also read a previously exported grid back for
// re-ranking under different weights.
package export

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/georetail/siteselect/internal/model"
)

// cellFeature pairs a cell's geometry with every computed attribute. The
// properties block round-trips through model.GridCell's JSON tags, which is
// what makes rerank on an exported grid lossless.
type cellFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties *model.GridCell `json:"properties"`
}

type cellCollection struct {
	Type     string        `json:"type"`
	Features []cellFeature `json:"features"`
}

func writeCollection(path string, cells []*model.GridCell) error {
	fc := cellCollection{Type: "FeatureCollection", Features: make([]cellFeature, 0, len(cells))}
	for _, c := range cells {
		g, err := geojson.Encode(c.Geom)
		if err != nil {
			return eris.Wrapf(err, "export: encode cell %d geometry for %s", c.ID, path)
		}
		fc.Features = append(fc.Features, cellFeature{
			Type:       "Feature",
			Geometry:   g,
			Properties: c,
		})
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "export: marshal %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	zap.L().Info("export: wrote GeoJSON", zap.String("path", path), zap.Int("features", len(fc.Features)))
	return nil
}

// WriteGridGeoJSON exports every cell with its full attribute set.
func WriteGridGeoJSON(path string, cells []*model.GridCell) error {
	return writeCollection(path, cells)
}

// WriteTopNGeoJSON exports the n best-ranked cells.
func WriteTopNGeoJSON(path string, cells []*model.GridCell, n int) error {
	return writeCollection(path, TopN(cells, n))
}

// WriteUnderservedGeoJSON exports only the cells flagged as market gaps.
func WriteUnderservedGeoJSON(path string, cells []*model.GridCell) error {
	var gaps []*model.GridCell
	for _, c := range cells {
		if c.Underserved {
			gaps = append(gaps, c)
		}
	}
	return writeCollection(path, gaps)
}

// ReadGridGeoJSON loads a grid previously written by WriteGridGeoJSON,
// restoring geometry, centroids, and every attribute.
func ReadGridGeoJSON(path string) ([]*model.GridCell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(model.ErrMissingLayer, "export: read grid %s: %v", path, err)
	}

	var fc cellCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "export: parse grid %s", path)
	}

	cells := make([]*model.GridCell, 0, len(fc.Features))
	for _, f := range fc.Features {
		c := f.Properties
		if c == nil {
			return nil, eris.Wrapf(model.ErrInvalidGeometry, "export: feature without properties in %s", path)
		}
		g, err := geojson.Decode(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "export: decode geometry for cell %d in %s", c.ID, path)
		}
		poly, ok := g.(geom.Polygon)
		if !ok {
			return nil, eris.Wrapf(model.ErrInvalidGeometry, "export: cell %d in %s is not a polygon", c.ID, path)
		}
		c.Geom = poly
		c.Centroid = poly.Centroid()
		if c.Raw == nil {
			c.Raw = make(map[string]float64)
		}
		if c.Norm == nil {
			c.Norm = make(map[string]float64)
		}
		cells = append(cells, c)
	}
	return cells, nil
}

// TopN returns the n best cells by rank without mutating the input order.
func TopN(cells []*model.GridCell, n int) []*model.GridCell {
	sorted := make([]*model.GridCell, len(cells))
	copy(sorted, cells)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}
