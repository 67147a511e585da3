package layer

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/georetail/siteselect/internal/model"
)

// Raster is a single-band grid loaded from an ESRI ASCII grid file. Row 0 of
// Data is the northernmost row, matching the file layout.
type Raster struct {
	Data     *sparse.DenseArray
	Nrows    int
	Ncols    int
	X0       float64 // west edge of the grid
	Y0       float64 // south edge of the grid
	CellSize float64
	NoData   float64
	// SR is the raster's spatial reference, read from a sibling .prj file.
	// Nil means the raster is already in the analysis projection.
	SR *proj.SR
}

// LoadASCIIGrid reads an ESRI ASCII grid (.asc). If a sibling .prj file
// exists its spatial reference is attached; otherwise the raster is assumed
// to be in the grid projection already.
func LoadASCIIGrid(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(model.ErrMissingLayer, "layer: open raster %s: %v", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)

	r := &Raster{NoData: -9999}
	header := map[string]float64{}
	var rows [][]float64
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		// Header lines are "key value"; data lines are all numeric.
		if len(fields) == 2 {
			if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
				v, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					return nil, eris.Wrapf(err, "layer: raster %s: bad header %q", path, fields[0])
				}
				header[strings.ToLower(fields[0])] = v
				continue
			}
		}
		row := make([]float64, 0, len(fields))
		for _, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "layer: raster %s: bad value %q", path, s)
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "layer: read raster %s", path)
	}

	r.Ncols = int(header["ncols"])
	r.Nrows = int(header["nrows"])
	r.CellSize = header["cellsize"]
	if r.Ncols <= 0 || r.Nrows <= 0 || r.CellSize <= 0 {
		return nil, eris.Wrapf(model.ErrInvalidGeometry,
			"layer: raster %s: header missing ncols/nrows/cellsize", path)
	}
	if v, ok := header["nodata_value"]; ok {
		r.NoData = v
	}
	// xllcenter/yllcenter give the center of the corner cell instead of its
	// corner; shift by half a cell to get edges.
	if v, ok := header["xllcorner"]; ok {
		r.X0 = v
	} else if v, ok := header["xllcenter"]; ok {
		r.X0 = v - r.CellSize/2
	}
	if v, ok := header["yllcorner"]; ok {
		r.Y0 = v
	} else if v, ok := header["yllcenter"]; ok {
		r.Y0 = v - r.CellSize/2
	}
	if len(rows) != r.Nrows {
		return nil, eris.Wrapf(model.ErrInvalidGeometry,
			"layer: raster %s: header declares %d rows, file has %d", path, r.Nrows, len(rows))
	}

	r.Data = sparse.ZerosDense(r.Nrows, r.Ncols)
	for i, row := range rows {
		if len(row) != r.Ncols {
			return nil, eris.Wrapf(model.ErrInvalidGeometry,
				"layer: raster %s: row %d has %d values, want %d", path, i, len(row), r.Ncols)
		}
		for j, v := range row {
			r.Data.Set(v, i, j)
		}
	}

	if sr, err := loadPrj(strings.TrimSuffix(path, ".asc") + ".prj"); err == nil {
		r.SR = sr
	}

	zap.L().Info("layer: raster loaded",
		zap.String("path", path),
		zap.Int("rows", r.Nrows),
		zap.Int("cols", r.Ncols),
		zap.Float64("cell_size", r.CellSize))
	return r, nil
}

func loadPrj(path string) (*proj.SR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return proj.Parse(strings.TrimSpace(string(data)))
}

// Value returns the cell value at raster row i, column j, or NoData when out
// of range.
func (r *Raster) Value(i, j int) float64 {
	if i < 0 || i >= r.Nrows || j < 0 || j >= r.Ncols {
		return r.NoData
	}
	return r.Data.Get(i, j)
}

// CellPolygon returns the footprint of raster cell (i, j) in raster
// coordinates.
func (r *Raster) CellPolygon(i, j int) geom.Polygon {
	x0 := r.X0 + float64(j)*r.CellSize
	// Row 0 is the top of the grid.
	y1 := r.Y0 + float64(r.Nrows-i)*r.CellSize
	y0 := y1 - r.CellSize
	x1 := x0 + r.CellSize
	return geom.Polygon([]geom.Path{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}})
}

// Bounds returns the raster extent in raster coordinates.
func (r *Raster) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: r.X0, Y: r.Y0},
		Max: geom.Point{
			X: r.X0 + float64(r.Ncols)*r.CellSize,
			Y: r.Y0 + float64(r.Nrows)*r.CellSize,
		},
	}
}

// SampleSum returns the area-weighted sum of raster values under p, which
// must be in raster coordinates. Cells holding NoData or negative values
// contribute nothing.
func (r *Raster) SampleSum(p geom.Polygon) float64 {
	b := p.Bounds()
	jMin := int((b.Min.X - r.X0) / r.CellSize)
	jMax := int((b.Max.X - r.X0) / r.CellSize)
	// Convert y extents to row indices; larger y means smaller row index.
	iMin := r.Nrows - 1 - int((b.Max.Y-r.Y0)/r.CellSize)
	iMax := r.Nrows - 1 - int((b.Min.Y-r.Y0)/r.CellSize)

	var sum float64
	for i := max(iMin, 0); i <= min(iMax, r.Nrows-1); i++ {
		for j := max(jMin, 0); j <= min(jMax, r.Ncols-1); j++ {
			v := r.Value(i, j)
			if v == r.NoData || v < 0 {
				continue
			}
			pix := r.CellPolygon(i, j)
			overlap := p.Intersection(pix).Area()
			if overlap <= 0 {
				continue
			}
			sum += v * overlap / pix.Area()
		}
	}
	return sum
}
