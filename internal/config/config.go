// Package config loads and validates the immutable per-run configuration for
// the suitability pipeline.
package config

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/georetail/siteselect/internal/model"
)

// WeightTolerance is the allowed deviation of the criterion weight sum from 1.0.
const WeightTolerance = 1e-6

// Config holds the full application configuration. It is loaded once per run
// and passed explicitly into each stage; no stage mutates it.
type Config struct {
	Inputs      InputsConfig      `yaml:"inputs" mapstructure:"inputs"`
	Grid        GridConfig        `yaml:"grid" mapstructure:"grid"`
	Weights     WeightsConfig     `yaml:"weights" mapstructure:"weights"`
	Amenity     AmenityConfig     `yaml:"amenity" mapstructure:"amenity"`
	Classify    ClassifyConfig    `yaml:"classify" mapstructure:"classify"`
	Underserved UnderservedConfig `yaml:"underserved" mapstructure:"underserved"`
	Export      ExportConfig      `yaml:"export" mapstructure:"export"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// InputsConfig names the read-only input layers. Vector layers may be GeoJSON
// or shapefiles; the population raster is an ESRI ASCII grid.
type InputsConfig struct {
	StudyAreaName    string            `yaml:"study_area_name" mapstructure:"study_area_name"`
	BoundaryPath     string            `yaml:"boundary" mapstructure:"boundary"`
	PopulationRaster string            `yaml:"population_raster" mapstructure:"population_raster"`
	RoadsPath        string            `yaml:"roads" mapstructure:"roads"`
	MajorRoadsPath   string            `yaml:"major_roads" mapstructure:"major_roads"`
	POIPaths         map[string]string `yaml:"poi" mapstructure:"poi"`
}

// GridConfig configures the analysis grid.
type GridConfig struct {
	// CellSizeM is the square cell side length in meters.
	CellSizeM float64 `yaml:"cell_size_m" mapstructure:"cell_size_m"`
	// Proj4 is the projected (meter-based) spatial reference the analysis
	// runs in, as a proj4 string.
	Proj4 string `yaml:"proj4" mapstructure:"proj4"`
	// SearchRadiusM is the POI search radius around each cell centroid.
	SearchRadiusM float64 `yaml:"search_radius_m" mapstructure:"search_radius_m"`
}

// WeightsConfig is the MCDA criterion weight vector. Weights must sum to 1.0
// within WeightTolerance.
type WeightsConfig struct {
	PopulationDensity float64 `yaml:"population_density" mapstructure:"population_density"`
	RoadAccessibility float64 `yaml:"road_accessibility" mapstructure:"road_accessibility"`
	CompetitionLevel  float64 `yaml:"competition_level" mapstructure:"competition_level"`
	AmenityProximity  float64 `yaml:"amenity_proximity" mapstructure:"amenity_proximity"`
	EconomicActivity  float64 `yaml:"economic_activity" mapstructure:"economic_activity"`
}

// Map returns the weights keyed by criterion name.
func (w WeightsConfig) Map() map[string]float64 {
	return map[string]float64{
		model.CritPopulationDensity: w.PopulationDensity,
		model.CritRoadAccessibility: w.RoadAccessibility,
		model.CritCompetitionLevel:  w.CompetitionLevel,
		model.CritAmenityProximity:  w.AmenityProximity,
		model.CritEconomicActivity:  w.EconomicActivity,
	}
}

// Sum returns the total of all criterion weights.
func (w WeightsConfig) Sum() float64 {
	return w.PopulationDensity + w.RoadAccessibility + w.CompetitionLevel +
		w.AmenityProximity + w.EconomicActivity
}

// Validate checks the weight vector sums to 1.0 within tolerance and that no
// weight is negative.
func (w WeightsConfig) Validate() error {
	for name, v := range w.Map() {
		if v < 0 {
			return eris.Wrapf(model.ErrInvalidWeights, "config: weight %s is negative (%g)", name, v)
		}
	}
	if d := math.Abs(w.Sum() - 1.0); d > WeightTolerance {
		return eris.Wrapf(model.ErrInvalidWeights, "config: weights sum to %.9f, want 1.0", w.Sum())
	}
	return nil
}

// AmenityConfig blends per-category POI counts into the composite amenity
// (foot traffic) score.
type AmenityConfig struct {
	CategoryWeights map[string]float64 `yaml:"category_weights" mapstructure:"category_weights"`
}

// ClassifyConfig wraps the classification thresholds.
type ClassifyConfig struct {
	Thresholds model.ClassThresholds `yaml:"thresholds" mapstructure:"thresholds"`
}

// UnderservedConfig holds the market gap cutoffs. A cell is underserved when
// its market gap score exceeds MinGapScore, its retail count is below
// MaxCompetition, and its population exceeds MinPopulation.
type UnderservedConfig struct {
	MinGapScore    float64 `yaml:"min_gap_score" mapstructure:"min_gap_score"`
	MaxCompetition float64 `yaml:"max_competition" mapstructure:"max_competition"`
	MinPopulation  float64 `yaml:"min_population" mapstructure:"min_population"`
}

// ExportConfig configures the export stage.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	TopN      int    `yaml:"top_n" mapstructure:"top_n"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml and the environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITESELECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("inputs.study_area_name", "study-area")
	v.SetDefault("grid.cell_size_m", 500.0)
	// UTM zone 43N; any projected meter-based proj4 string works.
	v.SetDefault("grid.proj4", "+proj=utm +zone=43 +datum=WGS84 +units=m +no_defs")
	v.SetDefault("grid.search_radius_m", 1000.0)
	v.SetDefault("weights.population_density", 0.30)
	v.SetDefault("weights.road_accessibility", 0.20)
	v.SetDefault("weights.competition_level", 0.15)
	v.SetDefault("weights.amenity_proximity", 0.20)
	v.SetDefault("weights.economic_activity", 0.15)
	v.SetDefault("amenity.category_weights", map[string]float64{
		"education":     0.25,
		"healthcare":    0.25,
		"banking":       0.15,
		"food_beverage": 0.20,
		"entertainment": 0.15,
	})
	v.SetDefault("classify.thresholds.excellent", 75.0)
	v.SetDefault("classify.thresholds.very_good", 60.0)
	v.SetDefault("classify.thresholds.good", 45.0)
	v.SetDefault("classify.thresholds.moderate", 30.0)
	v.SetDefault("underserved.min_gap_score", 60.0)
	v.SetDefault("underserved.max_competition", 3.0)
	v.SetDefault("underserved.min_population", 1000.0)
	v.SetDefault("export.output_dir", "outputs")
	v.SetDefault("export.top_n", 20)
	v.SetDefault("store.path", "siteselect.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration is internally consistent before a run.
func (c *Config) Validate() error {
	if c.Grid.CellSizeM <= 0 {
		return eris.Errorf("config: grid.cell_size_m must be positive, got %g", c.Grid.CellSizeM)
	}
	if c.Grid.SearchRadiusM <= 0 {
		return eris.Errorf("config: grid.search_radius_m must be positive, got %g", c.Grid.SearchRadiusM)
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if !c.Classify.Thresholds.Valid() {
		return eris.Errorf("config: classification thresholds must descend within [0,100]: %+v", c.Classify.Thresholds)
	}
	if c.Export.TopN <= 0 {
		return eris.Errorf("config: export.top_n must be positive, got %d", c.Export.TopN)
	}
	if c.Inputs.BoundaryPath == "" {
		return eris.Wrap(model.ErrMissingLayer, "config: inputs.boundary is required")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
