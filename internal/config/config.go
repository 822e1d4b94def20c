package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Database    string `yaml:"database" mapstructure:"database"`
	Collection  string `yaml:"collection" mapstructure:"collection"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ExtractConfig configures the convert, stage and load pipeline.
type ExtractConfig struct {
	DataDir              string `yaml:"data_dir" mapstructure:"data_dir"`
	ReferenceFile        string `yaml:"reference_file" mapstructure:"reference_file"`
	Converter            string `yaml:"converter" mapstructure:"converter"`
	Ogr2OgrPath          string `yaml:"ogr2ogr_path" mapstructure:"ogr2ogr_path"`
	SourceSRS            string `yaml:"source_srs" mapstructure:"source_srs"`
	TargetSRS            string `yaml:"target_srs" mapstructure:"target_srs"`
	ReprojectInProcess   bool   `yaml:"reproject_in_process" mapstructure:"reproject_in_process"`
	MaxWorkers           int    `yaml:"max_workers" mapstructure:"max_workers"`
	ChunkSize            int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	Incremental          bool   `yaml:"incremental" mapstructure:"incremental"`
	MunicipalityFallback string `yaml:"municipality_fallback" mapstructure:"municipality_fallback"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BAGLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.database", "locationdata_nl")
	v.SetDefault("store.collection", "address")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("extract.data_dir", ".")
	v.SetDefault("extract.reference_file", "woonplaats-gemeente.json")
	v.SetDefault("extract.converter", "ogr2ogr")
	v.SetDefault("extract.ogr2ogr_path", "ogr2ogr")
	v.SetDefault("extract.source_srs", "EPSG:28992")
	v.SetDefault("extract.target_srs", "EPSG:4326")
	v.SetDefault("extract.reproject_in_process", false)
	v.SetDefault("extract.max_workers", 6)
	v.SetDefault("extract.chunk_size", 10000)
	v.SetDefault("extract.incremental", false)
	v.SetDefault("extract.municipality_fallback", "town")

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

// Validate checks the settings a command needs. mode is "convert", "stage",
// "load", "run" or "status".
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := false
	switch mode {
	case "convert":
		errs = c.validateConvert(errs)
	case "stage":
		errs = c.validateStage(errs)
	case "load", "status":
		needStore = true
	case "run":
		errs = c.validateConvert(errs)
		errs = c.validateStage(errs)
		needStore = true
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "load" || mode == "run" {
		if c.Extract.ChunkSize < 1 {
			errs = append(errs, "extract.chunk_size must be > 0")
		}
	}

	if needStore {
		switch c.Store.Driver {
		case "postgres", "sqlite", "mongo":
		default:
			errs = append(errs, "store.driver must be one of postgres, sqlite, mongo")
		}
		if c.Store.DatabaseURL == "" && c.Store.Driver != "sqlite" {
			errs = append(errs, "store.database_url is required")
		}
		if c.Store.Collection == "" {
			errs = append(errs, "store.collection is required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateConvert(errs []string) []string {
	switch c.Extract.Converter {
	case "ogr2ogr":
		if c.Extract.Ogr2OgrPath == "" {
			errs = append(errs, "extract.ogr2ogr_path is required")
		}
	case "native":
	default:
		errs = append(errs, "extract.converter must be ogr2ogr or native")
	}
	return errs
}

func (c *Config) validateStage(errs []string) []string {
	if c.Extract.MaxWorkers < 1 || c.Extract.MaxWorkers > 64 {
		errs = append(errs, "extract.max_workers must be between 1 and 64")
	}
	if c.Extract.ReferenceFile == "" {
		errs = append(errs, "extract.reference_file is required")
	}
	switch strings.ToLower(c.Extract.MunicipalityFallback) {
	case "", "town", "municipality":
	default:
		errs = append(errs, "extract.municipality_fallback must be town or municipality")
	}
	return errs
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
