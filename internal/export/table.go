package export

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/georetail/siteselect/internal/model"
)

// tableHeader is the shared column layout of the CSV and XLSX exports.
var tableHeader = []string{
	"Rank",
	"Cell ID",
	"Suitability Score",
	"Class",
	"Population",
	"Population Density (per km2)",
	"Competition (stores within 1km)",
	"Amenity Score",
	"Road Density (km/km2)",
	"Banking Count (1km)",
}

func tableRow(c *model.GridCell) []string {
	return []string{
		strconv.Itoa(c.Rank),
		strconv.FormatInt(c.ID, 10),
		strconv.FormatFloat(c.Score, 'f', 2, 64),
		string(c.Class),
		strconv.FormatFloat(c.RawOr(model.FeatPopulation, 0), 'f', 0, 64),
		strconv.FormatFloat(c.RawOr(model.FeatPopDensity, 0), 'f', 1, 64),
		strconv.FormatFloat(c.RawOr(model.FeatRetailCount, 0), 'f', 0, 64),
		strconv.FormatFloat(c.RawOr(model.FeatAmenityScore, 0), 'f', 2, 64),
		strconv.FormatFloat(c.RawOr(model.FeatRoadDensity, 0), 'f', 2, 64),
		strconv.FormatFloat(c.RawOr(model.FeatBankingCount, 0), 'f', 0, 64),
	}
}

// WriteTopNCSV writes the n best-ranked cells as a CSV table.
func WriteTopNCSV(path string, cells []*model.GridCell, n int) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tableHeader); err != nil {
		return eris.Wrapf(err, "export: write header to %s", path)
	}
	top := TopN(cells, n)
	for _, c := range top {
		if err := w.Write(tableRow(c)); err != nil {
			return eris.Wrapf(err, "export: write row to %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "export: flush %s", path)
	}
	zap.L().Info("export: wrote CSV", zap.String("path", path), zap.Int("rows", len(top)))
	return nil
}

// WriteTopNXLSX writes the same ranked table as a spreadsheet.
func WriteTopNXLSX(path string, cells []*model.GridCell, n int) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Top Sites")
	if err != nil {
		return eris.Wrapf(err, "export: add sheet for %s", path)
	}

	header := sheet.AddRow()
	for _, h := range tableHeader {
		header.AddCell().Value = h
	}
	top := TopN(cells, n)
	for _, c := range top {
		row := sheet.AddRow()
		for _, v := range tableRow(c) {
			row.AddCell().Value = v
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("export: wrote XLSX", zap.String("path", path), zap.Int("rows", len(top)))
	return nil
}
