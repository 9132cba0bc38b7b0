package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/thresholds"
	"github.com/learnloop/analytics-engine/internal/utils"
)

// Duration lets cadences be written as "15m" / "24h" in the config file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type SchedulerConfig struct {
	MaxIntervalDays int `yaml:"max_interval_days"`
}

type MonitorConfig struct {
	PerformanceEvery Duration `yaml:"performance_every"`
	EngagementEvery  Duration `yaml:"engagement_every"`
	StagnationEvery  Duration `yaml:"stagnation_every"`
	ConsistencyEvery Duration `yaml:"consistency_every"`
	AnalyticsEvery   Duration `yaml:"analytics_every"`
	RunDeadline      Duration `yaml:"run_deadline"`
	WorkerLimit      int      `yaml:"worker_limit"`
	WindowDays       int      `yaml:"window_days"`
}

type ForecastConfig struct {
	MinSnapshots           int      `yaml:"min_snapshots"`
	MaxHorizonDays         int      `yaml:"max_horizon_days"`
	RecomputeDelta         int      `yaml:"recompute_delta"`
	ValidationRefreshEvery Duration `yaml:"validation_refresh_every"`
}

type SessionConfig struct {
	InactivityTimeout Duration `yaml:"inactivity_timeout"`
	EventBuffer       int      `yaml:"event_buffer"`
}

type SignatureConfig struct {
	WindowSnapshots  int      `yaml:"window_snapshots"`
	Clusters         int      `yaml:"clusters"`
	RetrainEvery     Duration `yaml:"retrain_every"`
	AnomalyWindow    int      `yaml:"anomaly_window"`
	AnomalyThreshold float64  `yaml:"anomaly_threshold"`
}

type RetentionConfig struct {
	SnapshotDays int `yaml:"snapshot_days"`
}

type Config struct {
	Scheduler  SchedulerConfig   `yaml:"scheduler"`
	Thresholds thresholds.Config `yaml:"thresholds"`
	Monitor    MonitorConfig     `yaml:"monitor"`
	Forecast   ForecastConfig    `yaml:"forecast"`
	Session    SessionConfig     `yaml:"session"`
	Signature  SignatureConfig   `yaml:"signature"`
	Retention  RetentionConfig   `yaml:"retention"`
}

func Default() Config {
	return Config{
		Scheduler:  SchedulerConfig{MaxIntervalDays: 365},
		Thresholds: thresholds.DefaultConfig(),
		Monitor: MonitorConfig{
			PerformanceEvery: Duration(15 * time.Minute),
			EngagementEvery:  Duration(time.Hour),
			StagnationEvery:  Duration(time.Hour),
			ConsistencyEvery: Duration(time.Hour),
			AnalyticsEvery:   Duration(24 * time.Hour),
			RunDeadline:      Duration(10 * time.Minute),
			WorkerLimit:      8,
			WindowDays:       14,
		},
		Forecast: ForecastConfig{
			MinSnapshots:           5,
			MaxHorizonDays:         365,
			RecomputeDelta:         3,
			ValidationRefreshEvery: Duration(24 * time.Hour),
		},
		Session: SessionConfig{
			InactivityTimeout: Duration(30 * time.Minute),
			EventBuffer:       16,
		},
		Signature: SignatureConfig{
			WindowSnapshots:  200,
			Clusters:         4,
			RetrainEvery:     Duration(7 * 24 * time.Hour),
			AnomalyWindow:    10,
			AnomalyThreshold: 2.5,
		},
		Retention: RetentionConfig{SnapshotDays: 180},
	}
}

// Load builds the config from defaults, overlays the optional YAML file at
// ANALYTICS_CONFIG_PATH, then applies env overrides for the most commonly
// tuned knobs.
func Load(log *logger.Logger) (Config, error) {
	cfg := Default()

	path := utils.GetEnv("ANALYTICS_CONFIG_PATH", "", log)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		if log != nil {
			log.Info("loaded analytics config file", "path", path)
		}
	}

	cfg.Scheduler.MaxIntervalDays = utils.GetEnvAsInt("SCHEDULER_MAX_INTERVAL_DAYS", cfg.Scheduler.MaxIntervalDays, log)
	cfg.Thresholds.Decline.ScoreThreshold = utils.GetEnvAsFloat("DECLINE_SCORE_THRESHOLD", cfg.Thresholds.Decline.ScoreThreshold, log)
	cfg.Forecast.MinSnapshots = utils.GetEnvAsInt("FORECAST_MIN_SNAPSHOTS", cfg.Forecast.MinSnapshots, log)
	cfg.Forecast.MaxHorizonDays = utils.GetEnvAsInt("FORECAST_MAX_HORIZON_DAYS", cfg.Forecast.MaxHorizonDays, log)
	cfg.Monitor.WorkerLimit = utils.GetEnvAsInt("MONITOR_WORKER_LIMIT", cfg.Monitor.WorkerLimit, log)
	cfg.Session.InactivityTimeout = Duration(utils.GetEnvAsDuration("SESSION_INACTIVITY_TIMEOUT", cfg.Session.InactivityTimeout.Std(), log))
	cfg.Retention.SnapshotDays = utils.GetEnvAsInt("SNAPSHOT_RETENTION_DAYS", cfg.Retention.SnapshotDays, log)
	return cfg, nil
}
