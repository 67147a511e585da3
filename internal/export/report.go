package export

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/georetail/siteselect/internal/config"
	"github.com/georetail/siteselect/internal/model"
)

// WriteSummaryReport writes a plain-text summary of the run: configuration
// echo, score distribution, class breakdown, the top ten sites, and market
// gap statistics.
func WriteSummaryReport(path string, cells []*model.GridCell, cfg *config.Config) error {
	var b strings.Builder

	fmt.Fprintf(&b, "RETAIL SITE SUITABILITY ANALYSIS\n")
	fmt.Fprintf(&b, "================================\n\n")
	fmt.Fprintf(&b, "Study area:   %s\n", cfg.Inputs.StudyAreaName)
	fmt.Fprintf(&b, "Generated:    %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Grid cells:   %d (%.0f m cells)\n\n", len(cells), cfg.Grid.CellSizeM)

	fmt.Fprintf(&b, "Criterion weights\n")
	fmt.Fprintf(&b, "  Population density:  %.2f\n", cfg.Weights.PopulationDensity)
	fmt.Fprintf(&b, "  Road accessibility:  %.2f\n", cfg.Weights.RoadAccessibility)
	fmt.Fprintf(&b, "  Competition level:   %.2f (inverse)\n", cfg.Weights.CompetitionLevel)
	fmt.Fprintf(&b, "  Amenity proximity:   %.2f\n", cfg.Weights.AmenityProximity)
	fmt.Fprintf(&b, "  Economic activity:   %.2f\n\n", cfg.Weights.EconomicActivity)

	mean, min, max, std := scoreStats(cells)
	fmt.Fprintf(&b, "Score distribution\n")
	fmt.Fprintf(&b, "  Mean:   %6.2f\n", mean)
	fmt.Fprintf(&b, "  Min:    %6.2f\n", min)
	fmt.Fprintf(&b, "  Max:    %6.2f\n", max)
	fmt.Fprintf(&b, "  StdDev: %6.2f\n\n", std)

	fmt.Fprintf(&b, "Suitability classes\n")
	counts := classCounts(cells)
	for _, cls := range model.Classes {
		n := counts[cls]
		pct := 0.0
		if len(cells) > 0 {
			pct = 100 * float64(n) / float64(len(cells))
		}
		fmt.Fprintf(&b, "  %-10s %5d cells (%5.1f%%)\n", cls, n, pct)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Top 10 sites\n")
	fmt.Fprintf(&b, "  %-5s %-8s %-8s %-10s %-10s %s\n",
		"Rank", "Cell", "Score", "Class", "Pop", "Stores(1km)")
	for _, c := range TopN(cells, 10) {
		fmt.Fprintf(&b, "  %-5d %-8d %-8.2f %-10s %-10.0f %.0f\n",
			c.Rank, c.ID, c.Score, c.Class,
			c.RawOr(model.FeatPopulation, 0), c.RawOr(model.FeatRetailCount, 0))
	}
	b.WriteString("\n")

	var underserved, zeroComp int
	var gapSum float64
	for _, c := range cells {
		if c.Underserved {
			underserved++
			gapSum += c.MarketGapScore
		}
		if c.ZeroCompetition {
			zeroComp++
		}
	}
	fmt.Fprintf(&b, "Market gaps\n")
	fmt.Fprintf(&b, "  Underserved cells:      %d\n", underserved)
	fmt.Fprintf(&b, "  Zero-competition cells: %d\n", zeroComp)
	if underserved > 0 {
		fmt.Fprintf(&b, "  Mean gap score:         %.2f\n", gapSum/float64(underserved))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

func scoreStats(cells []*model.GridCell) (mean, min, max, std float64) {
	if len(cells) == 0 {
		return 0, 0, 0, 0
	}
	min, max = cells[0].Score, cells[0].Score
	var sum float64
	for _, c := range cells {
		sum += c.Score
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	mean = sum / float64(len(cells))
	var sq float64
	for _, c := range cells {
		d := c.Score - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(len(cells)))
	return mean, min, max, std
}

func classCounts(cells []*model.GridCell) map[model.Class]int {
	counts := make(map[model.Class]int, len(model.Classes))
	for _, c := range cells {
		counts[c.Class]++
	}
	return counts
}
