package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents service configuration for dp-search-index-migration
type Config struct {
	AwsRegion               string        `envconfig:"AWS_REGION"`
	AwsSecSkipVerify        bool          `envconfig:"AWS_SEC_SKIP_VERIFY"`
	CreateDestIndices       bool          `envconfig:"CREATE_DEST_INDICES"`
	DeleteFailedIndices     bool          `envconfig:"DELETE_FAILED_INDICES"`
	DestIndexSettingsPath   string        `envconfig:"DEST_INDEX_SETTINGS_PATH"`
	MaxConcurrentMigrations int           `envconfig:"MAX_CONCURRENT_MIGRATIONS"`
	MigrationFilePath       string        `envconfig:"MIGRATION_FILE_PATH"`
	PollInterval            time.Duration `envconfig:"POLL_INTERVAL"`
	PollMaxRetries          int           `envconfig:"POLL_MAX_RETRIES"`
	PollTimeout             time.Duration `envconfig:"POLL_TIMEOUT"`
	RequestsPerSecond       int           `envconfig:"REQUESTS_PER_SECOND"`
	SignESRequests          bool          `envconfig:"SIGN_ELASTICSEARCH_REQUESTS"`
	SourceRemoteHost        string        `envconfig:"SOURCE_REMOTE_HOST"`
	SourceRemotePassword    string        `envconfig:"SOURCE_REMOTE_PASSWORD"      json:"-"`
	SourceRemoteUsername    string        `envconfig:"SOURCE_REMOTE_USERNAME"`
	StrictCompletion        bool          `envconfig:"STRICT_COMPLETION"`
	SwapAlias               string        `envconfig:"SWAP_ALIAS"`
	TargetElasticSearchURL  string        `envconfig:"TARGET_ELASTIC_SEARCH_URL"`
	TargetPassword          string        `envconfig:"TARGET_PASSWORD"             json:"-"`
	TargetTimeout           time.Duration `envconfig:"TARGET_TIMEOUT"`
	TargetUsername          string        `envconfig:"TARGET_USERNAME"`
	TrackerInterval         time.Duration `envconfig:"TRACKER_INTERVAL"`
}

var cfg *Config

// Get returns the default config with any modifications through environment
// variables
func Get() (*Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	cfg = &Config{
		AwsRegion:               "eu-west-2",
		AwsSecSkipVerify:        false,
		CreateDestIndices:       false,
		DeleteFailedIndices:     false,
		DestIndexSettingsPath:   "",
		MaxConcurrentMigrations: 1,
		MigrationFilePath:       "migrations.yml",
		PollInterval:            10 * time.Second,
		PollMaxRetries:          3,
		PollTimeout:             30 * time.Minute,
		RequestsPerSecond:       -1,
		SignESRequests:          false,
		SourceRemoteHost:        "http://localhost:9200",
		SourceRemotePassword:    "",
		SourceRemoteUsername:    "",
		StrictCompletion:        false,
		SwapAlias:               "",
		TargetElasticSearchURL:  "http://localhost:11200",
		TargetPassword:          "",
		TargetTimeout:           2 * time.Minute,
		TargetUsername:          "",
		TrackerInterval:         5 * time.Second,
	}

	return cfg, envconfig.Process("", cfg)
}
