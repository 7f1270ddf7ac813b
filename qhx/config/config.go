package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/classify"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/lightcurve"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/periodsearch"
)

// Config stores all configuration of the pipeline.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Search   SearchConfig   `mapstructure:"search"`
	Classify ClassifyConfig `mapstructure:"classify"`
	Results  ResultsConfig  `mapstructure:"results"`
	Workers  int            `mapstructure:"workers"`
}

// DataConfig describes how a survey table maps onto the normalized schema.
type DataConfig struct {
	GroupByKey string         `mapstructure:"groupByKey"`
	Columns    ColumnsConfig  `mapstructure:"columns"`
	Filters    map[string]int `mapstructure:"filters"`
	SkipBad    bool           `mapstructure:"skipBadRows"`
}

// ColumnsConfig names the raw survey columns per normalized field.
type ColumnsConfig struct {
	Mag    string `mapstructure:"mag"`
	MagErr string `mapstructure:"magErr"`
	Time   string `mapstructure:"time"`
	Band   string `mapstructure:"band"`
}

// SearchConfig holds the period-search grid and weighting settings.
type SearchConfig struct {
	NTau          int     `mapstructure:"ntau"`
	NGrid         int     `mapstructure:"ngrid"`
	MinFq         float64 `mapstructure:"minFq"`
	MaxFq         float64 `mapstructure:"maxFq"`
	IncludeErrors bool    `mapstructure:"includeErrors"`
	MinSamples    int     `mapstructure:"minSamples"`
}

// ClassifyConfig holds the rule-based classification thresholds.
type ClassifyConfig struct {
	RelTolerance        float64 `mapstructure:"relTolerance"`
	SignificantStrength float64 `mapstructure:"significantStrength"`
	MarginalStrength    float64 `mapstructure:"marginalStrength"`
	SingleBandStrength  float64 `mapstructure:"singleBandStrength"`
	IoUMin              float64 `mapstructure:"iouMin"`
}

// ResultsConfig locates the results database.
type ResultsConfig struct {
	DBPath string `mapstructure:"dbPath"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables. The
// loaded configuration is validated eagerly so schema mismatches surface at
// startup, not at use time.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(qhx.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	defaults := DefaultThresholds()
	viper.SetDefault("workers", qhx.DefaultWorkerCount)
	viper.SetDefault("search.ntau", qhx.DefaultNTau)
	viper.SetDefault("search.ngrid", qhx.DefaultNGrid)
	viper.SetDefault("search.minFq", qhx.DefaultMinFrequency)
	viper.SetDefault("search.maxFq", qhx.DefaultMaxFrequency)
	viper.SetDefault("search.minSamples", qhx.DefaultMinSamples)
	viper.SetDefault("classify.relTolerance", defaults.RelTolerance)
	viper.SetDefault("classify.significantStrength", defaults.SignificantStrength)
	viper.SetDefault("classify.marginalStrength", defaults.MarginalStrength)
	viper.SetDefault("classify.singleBandStrength", defaults.SingleBandStrength)
	viper.SetDefault("classify.iouMin", defaults.IoUMin)
	viper.SetDefault("results.dbPath", qhx.DefaultResultsDBPath)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // e.g. search.minFq becomes SEARCH_MINFQ

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := AppConfig.Validate(); err != nil {
		return nil, err
	}
	return &AppConfig, nil
}

// DefaultThresholds exposes the classifier defaults used when no config file
// overrides them.
func DefaultThresholds() classify.Thresholds {
	return classify.DefaultThresholds()
}

// Validate checks every configured section against the constraints the
// pipeline components enforce, so misconfiguration fails here first.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Data.GroupByKey != "" || len(c.Data.Filters) > 0 || c.Data.Columns != (ColumnsConfig{}) {
		// Data mapping is optional in the file but must be complete if present.
		if err := c.ColumnMapping().Validate(); err != nil {
			return err
		}
		if c.Data.GroupByKey == "" {
			return fmt.Errorf("%w: no grouping key configured", lightcurve.ErrSchema)
		}
		if len(c.Data.Filters) == 0 {
			return fmt.Errorf("%w: filter mapping is empty", lightcurve.ErrSchema)
		}
	}
	if err := c.GridSpec().Validate(); err != nil {
		return err
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("invalid classification thresholds: %w", err)
	}
	return nil
}

// ColumnMapping converts the data section into the schema mapper's form.
func (c *Config) ColumnMapping() lightcurve.ColumnMapping {
	return lightcurve.ColumnMapping{
		Mag:    c.Data.Columns.Mag,
		MagErr: c.Data.Columns.MagErr,
		Time:   c.Data.Columns.Time,
		Band:   c.Data.Columns.Band,
	}
}

// FilterMapping converts the configured filter labels into band codes.
func (c *Config) FilterMapping() lightcurve.FilterMapping {
	out := make(lightcurve.FilterMapping, len(c.Data.Filters))
	for label, code := range c.Data.Filters {
		out[label] = lightcurve.Band(code)
	}
	return out
}

// GridSpec converts the search section into a canonicalizable grid spec.
func (c *Config) GridSpec() periodsearch.GridSpec {
	return periodsearch.GridSpec{
		NTau:  c.Search.NTau,
		NGrid: c.Search.NGrid,
		MinFq: c.Search.MinFq,
		MaxFq: c.Search.MaxFq,
	}
}

// Thresholds converts the classify section into classifier thresholds.
func (c *Config) Thresholds() classify.Thresholds {
	return classify.Thresholds{
		RelTolerance:        c.Classify.RelTolerance,
		SignificantStrength: c.Classify.SignificantStrength,
		MarginalStrength:    c.Classify.MarginalStrength,
		SingleBandStrength:  c.Classify.SingleBandStrength,
		IoUMin:              c.Classify.IoUMin,
	}
}
