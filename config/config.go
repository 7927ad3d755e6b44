package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel int `yaml:"log_level"`

	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Registry RegistryConfig `yaml:"registry"`
	Sync     SyncConfig     `yaml:"sync"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type StorageConfig struct {
	// Type of storage: "sqlite" or "memory"
	Type string `yaml:"type"`

	// SQLite database file
	Path string `yaml:"path"`
}

type RegistryConfig struct {
	// Listing endpoint, queried with in_use, company_id and page
	BaseURL        string        `yaml:"base_url"`
	UserAgent      string        `yaml:"user_agent"`
	AcceptLanguage string        `yaml:"accept_language"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type SyncConfig struct {
	PageDelay        time.Duration `yaml:"page_delay"`
	ErrorDelay       time.Duration `yaml:"error_delay"`
	ProgressTTL      time.Duration `yaml:"progress_ttl"`
	PersistStepEvery int           `yaml:"persist_step_every"`
	ImportBatchSize  int           `yaml:"import_batch_size"`

	PageBudget PageBudgetConfig `yaml:"page_budget"`

	// Periodic full sync; disabled when zero
	ScheduleInterval time.Duration `yaml:"schedule_interval"`
	ScheduleJitter   time.Duration `yaml:"schedule_jitter"`
}

// PageBudgetConfig holds the page-count estimates used when the caller does not
// pass an explicit limit. They are guesses about registry size, not facts.
type PageBudgetConfig struct {
	Default   int            `yaml:"default"`
	Company   int            `yaml:"company"`
	Companies map[string]int `yaml:"companies"`
}

type SnapshotConfig struct {
	// Type of snapshot store: "", "local" or "gcs"
	Type string `yaml:"type"`

	// Local snapshot options
	Dir string `yaml:"dir"`

	// GCS snapshot options
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`

	ExportAfterSync bool `yaml:"export_after_sync"`
}

const (
	DefaultRegistryURL    = "https://registru.onjn.gov.ro/mijloace-de-joc"
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "ro-RO,ro;q=0.9,en-US;q=0.8,en;q=0.7"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config *Config

	// Unmarshal the YAML data into the struct
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = &Config{}
	}

	config.ApplyDefaults()
	return config, nil
}

// ApplyDefaults fills every omitted field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/registry.db"
	}

	if c.Registry.BaseURL == "" {
		c.Registry.BaseURL = DefaultRegistryURL
	}
	if c.Registry.UserAgent == "" {
		c.Registry.UserAgent = DefaultUserAgent
	}
	if c.Registry.AcceptLanguage == "" {
		c.Registry.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.Registry.RequestTimeout <= 0 {
		c.Registry.RequestTimeout = 30 * time.Second
	}

	if c.Sync.PageDelay <= 0 {
		c.Sync.PageDelay = 500 * time.Millisecond
	}
	if c.Sync.ErrorDelay <= 0 {
		c.Sync.ErrorDelay = time.Second
	}
	if c.Sync.ProgressTTL <= 0 {
		c.Sync.ProgressTTL = 30 * time.Second
	}
	if c.Sync.PersistStepEvery <= 0 {
		c.Sync.PersistStepEvery = 100
	}
	if c.Sync.ImportBatchSize <= 0 {
		c.Sync.ImportBatchSize = 100
	}
	if c.Sync.PageBudget.Default <= 0 {
		c.Sync.PageBudget.Default = 1200
	}
	if c.Sync.PageBudget.Company <= 0 {
		c.Sync.PageBudget.Company = 100
	}

	if c.Snapshot.Type == "local" && c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "data/snapshots"
	}
}
