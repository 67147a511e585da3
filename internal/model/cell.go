// Package model holds the core data types of the suitability pipeline:
// the study area, the analysis grid cell, and the classification scheme.
package model

import (
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// Raw feature keys written by the extractors. Each extractor owns a disjoint
// set of keys, which is what makes parallel extraction safe without locks.
const (
	FeatPopulation    = "population"
	FeatPopDensity    = "pop_density"
	FeatRoadLengthM   = "road_length_m"
	FeatRoadDensity   = "road_density_km_per_km2"
	FeatMajorRoadLenM = "major_road_length_m"
	FeatDistMajorRoad = "dist_to_major_road_m"
	FeatRetailCount   = "retail_count_1km"
	FeatCompPressure  = "competition_pressure"
	FeatAmenityScore  = "amenity_score"
	FeatBankingCount  = "banking_count_1km"
)

// Normalized criterion keys produced by the normalizer and consumed by the
// weighted aggregator. These are the five MCDA criteria.
const (
	CritPopulationDensity = "population_density"
	CritRoadAccessibility = "road_accessibility"
	CritCompetitionLevel  = "competition_level"
	CritAmenityProximity  = "amenity_proximity"
	CritEconomicActivity  = "economic_activity"
)

// Criteria lists the five criterion keys in their documented weight order.
var Criteria = []string{
	CritPopulationDensity,
	CritRoadAccessibility,
	CritCompetitionLevel,
	CritAmenityProximity,
	CritEconomicActivity,
}

// StudyArea is the analysis boundary. It is loaded once at pipeline start and
// never mutated afterwards.
type StudyArea struct {
	Name     string
	Boundary geom.Polygon
	SR       *proj.SR
}

// AreaKM2 returns the boundary area in square kilometers, assuming the study
// area spatial reference is in meters.
func (a *StudyArea) AreaKM2() float64 {
	return a.Boundary.Area() / 1e6
}

// GridCell is the atomic unit of analysis. Cells are created by the grid
// builder, enriched in place by the extractors, finalized by the aggregator
// and ranker, and treated as immutable by the export stage.
type GridCell struct {
	ID       int64        `json:"cell_id"`
	Geom     geom.Polygon `json:"-"`
	Centroid geom.Point   `json:"-"`

	// AreaKM2 is the cell area in km²; Coverage is the fraction of the cell
	// inside the study area boundary (1.0 for interior cells).
	AreaKM2  float64 `json:"area_km2"`
	Coverage float64 `json:"coverage"`

	Raw  map[string]float64 `json:"raw_features"`
	Norm map[string]float64 `json:"normalized_features"`

	Score          float64 `json:"suitability_score"`
	MarketGapScore float64 `json:"market_gap_score"`
	Rank           int     `json:"rank"`
	Class          Class   `json:"suitability_class"`

	Underserved     bool `json:"underserved"`
	ZeroCompetition bool `json:"zero_competition"`
}

// NewGridCell creates a cell with empty feature maps.
func NewGridCell(id int64, g geom.Polygon) *GridCell {
	return &GridCell{
		ID:       id,
		Geom:     g,
		Centroid: g.Centroid(),
		Raw:      make(map[string]float64),
		Norm:     make(map[string]float64),
	}
}

// RawOr returns the raw feature value for key, or def when the extractor
// wrote no value.
func (c *GridCell) RawOr(key string, def float64) float64 {
	if v, ok := c.Raw[key]; ok {
		return v
	}
	return def
}
