package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "GYMTRACK"

type Config struct {
	DataDir    string
	DBPath     string
	ConfigPath string
	Backend    BackendConfig
	Tracking   TrackingConfig
	Recovery   RecoveryConfig
	Sources    SourcesConfig
	Log        LogConfig
	Server     ServerConfig
}

type BackendConfig struct {
	// Address of a remote gRPC backend. Empty selects the local SQLite backend.
	Address string
	Timeout time.Duration
}

type TrackingConfig struct {
	FlushInterval     time.Duration
	MinMovementMeters float64
	MaxBatchPoints    int
	ReferenceWeightKg float64
}

type RecoveryConfig struct {
	// MaxDuration caps the duration reconstructed for a session left open by a previous run.
	MaxDuration time.Duration
}

type SourcesConfig struct {
	// GPXSpeedup divides the gaps between replayed GPX fixes.
	GPXSpeedup float64
	NMEABaud   int
}

type LogConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	Listen string
}

// New returns the defaults for dataDir without reading any file or environment.
func New(dataDir string) (Config, error) {
	return Load(dataDir, "")
}

// Load reads configPath (default <dataDir>/config.yaml) when it exists, then applies
// GYMTRACK_* environment overrides, e.g. GYMTRACK_TRACKING_FLUSH_INTERVAL=5s.
func Load(dataDir, configPath string) (Config, error) {
	if strings.TrimSpace(dataDir) == "" {
		return Config{}, fmt.Errorf("data dir is required")
	}
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(dataDir, "config.yaml")
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configPath, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("stat config %s: %w", configPath, err)
	}

	cfg := Config{
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, "gymtrack.db"),
		ConfigPath: configPath,
		Backend: BackendConfig{
			Address: v.GetString("backend.address"),
			Timeout: v.GetDuration("backend.timeout"),
		},
		Tracking: TrackingConfig{
			FlushInterval:     v.GetDuration("tracking.flush_interval"),
			MinMovementMeters: v.GetFloat64("tracking.min_movement_meters"),
			MaxBatchPoints:    v.GetInt("tracking.max_batch_points"),
			ReferenceWeightKg: v.GetFloat64("tracking.reference_weight_kg"),
		},
		Recovery: RecoveryConfig{
			MaxDuration: v.GetDuration("recovery.max_duration"),
		},
		Sources: SourcesConfig{
			GPXSpeedup: v.GetFloat64("sources.gpx_speedup"),
			NMEABaud:   v.GetInt("sources.nmea_baud"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Server: ServerConfig{
			Listen: v.GetString("server.listen"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.address", "")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("tracking.flush_interval", 10*time.Second)
	v.SetDefault("tracking.min_movement_meters", 2.0)
	v.SetDefault("tracking.max_batch_points", 500)
	v.SetDefault("tracking.reference_weight_kg", 70.0)
	v.SetDefault("recovery.max_duration", 2*time.Hour)
	v.SetDefault("sources.gpx_speedup", 1.0)
	v.SetDefault("sources.nmea_baud", 9600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.listen", "127.0.0.1:7447")
}

func (c Config) Validate() error {
	switch {
	case c.Backend.Timeout <= 0:
		return fmt.Errorf("backend.timeout must be positive")
	case c.Tracking.FlushInterval <= 0:
		return fmt.Errorf("tracking.flush_interval must be positive")
	case c.Tracking.MinMovementMeters < 0:
		return fmt.Errorf("tracking.min_movement_meters must not be negative")
	case c.Tracking.MaxBatchPoints <= 0:
		return fmt.Errorf("tracking.max_batch_points must be positive")
	case c.Tracking.ReferenceWeightKg <= 0:
		return fmt.Errorf("tracking.reference_weight_kg must be positive")
	case c.Recovery.MaxDuration <= 0:
		return fmt.Errorf("recovery.max_duration must be positive")
	case c.Sources.GPXSpeedup <= 0:
		return fmt.Errorf("sources.gpx_speedup must be positive")
	case c.Sources.NMEABaud <= 0:
		return fmt.Errorf("sources.nmea_baud must be positive")
	}
	return nil
}
