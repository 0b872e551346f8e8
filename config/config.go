package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	S3        S3Config
	Postgres  PostgresConfig
	Scheduler SchedulerConfig
	Scraper   ScraperConfig
	DBPath    string
	OutputDir string
	LogLevel  string
	Closets   map[string]*ClosetConfig
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for DO Spaces / R2
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether object storage was requested at all.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Validate fails fast on a half-configured bucket, before any network activity.
func (c S3Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Region == "" && c.Endpoint == "" {
		return fmt.Errorf("s3: bucket %q configured without region or endpoint", c.Bucket)
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return fmt.Errorf("s3: bucket %q configured without credentials", c.Bucket)
	}
	return nil
}

type PostgresConfig struct {
	URL string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ScraperConfig struct {
	// FeedDelayMS is the politeness delay between feed pages.
	FeedDelayMS int
	// DetailDelayMS is the politeness delay between per-listing detail fetches.
	DetailDelayMS int
	MaxPages      int
	VisitDetails  bool
	Incremental   bool
	// RetryTransient enables bounded retry with backoff on transient fetch
	// failures. Off by default: a failed page ends the run with partial data.
	RetryTransient bool
	RetryAttempts  int
}

type ClosetConfig struct {
	Username string `yaml:"username"`
	Name     string `yaml:"name"`
	S3Prefix string `yaml:"s3_prefix"`
	MaxPages int    `yaml:"max_pages"`
	DelayMS  int    `yaml:"delay_ms"`
	Format   string `yaml:"format"` // json, csv, both
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("POSTGRES_URL"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("BACKUP_CRON"),
		},
		Scraper: ScraperConfig{
			FeedDelayMS:    getEnvInt("FEED_DELAY_MS", 1000),
			DetailDelayMS:  getEnvInt("DETAIL_DELAY_MS", 2000),
			MaxPages:       getEnvInt("MAX_PAGES", 200),
			VisitDetails:   getEnv("VISIT_DETAILS", "true") == "true",
			Incremental:    getEnv("INCREMENTAL", "true") == "true",
			RetryTransient: os.Getenv("RETRY_TRANSIENT") == "true",
			RetryAttempts:  getEnvInt("RETRY_ATTEMPTS", 3),
		},
		DBPath:    getEnv("DB_PATH", "backup.db"),
		OutputDir: getEnv("OUTPUT_DIR", "."),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Closets:   make(map[string]*ClosetConfig),
	}

	if interval := os.Getenv("BACKUP_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadClosetConfigs(); err != nil {
		return nil, err
	}

	// A bare CLOSET_USERNAME is enough to run against one closet without a
	// yaml file.
	if username := os.Getenv("CLOSET_USERNAME"); username != "" {
		if _, ok := cfg.Closets[username]; !ok {
			cfg.Closets[username] = &ClosetConfig{Username: username, Name: username}
		}
	}

	for _, closet := range cfg.Closets {
		applyClosetDefaults(closet, cfg)
	}

	if err := cfg.S3.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadClosetConfigs() error {
	configDir := "config/closets"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var closet ClosetConfig
		if err := yaml.Unmarshal(data, &closet); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if closet.Username == "" {
			return fmt.Errorf("%s: closet config missing username", path)
		}

		c.Closets[closet.Username] = &closet
	}

	return nil
}

func applyClosetDefaults(closet *ClosetConfig, cfg *Config) {
	if closet.Name == "" {
		closet.Name = closet.Username
	}
	if closet.S3Prefix == "" {
		closet.S3Prefix = closet.Username
	}
	if closet.MaxPages == 0 {
		closet.MaxPages = cfg.Scraper.MaxPages
	}
	if closet.DelayMS == 0 {
		closet.DelayMS = cfg.Scraper.DetailDelayMS
	}
	if closet.Format == "" {
		closet.Format = "json"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
