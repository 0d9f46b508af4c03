package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nibzard/ordo/internal/orderindex"
)

// ConfigSource represents where a configuration value came from.
type ConfigSource string

const (
	SourceDefault  ConfigSource = "default"
	SourceUserFile ConfigSource = "user file"
	SourceProjFile ConfigSource = "project file"
	SourceEnv      ConfigSource = "environment"
	SourceFlag     ConfigSource = "flag"
)

// ConfigWithSources holds configuration along with source information for
// each field, keyed by TOML path (for example "order.gap").
type ConfigWithSources struct {
	Config  *Config
	Sources map[string]ConfigSource
	// Files lists the config files that were read, user file first.
	Files []string
}

// StoreKind selects the task repository.
type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreFile     StoreKind = "file"
	StoreDynamoDB StoreKind = "dynamodb"
)

// Default values.
const (
	DefaultUser     = "me"
	DefaultStore    = StoreFile
	DefaultTodoFile = "~/.ordo/tasks.json"
	DefaultLogDir   = "~/.ordo/logs"
	DefaultListen   = "127.0.0.1:8080"
	DefaultPageSize = 50
	DefaultTable    = "ordo-tasks"
)

// Config holds the full configuration for ordo.
type Config struct {
	// User is the scope commands act on.
	User  string    `toml:"user"`
	Store StoreKind `toml:"store"`

	// Paths. TodoFile may also be minio://bucket/key.
	TodoFile   string `toml:"todo_file"`
	SchemaFile string `toml:"schema_file"`
	LogDir     string `toml:"log_dir"`

	// Server
	Listen   string `toml:"listen"`
	PageSize int    `toml:"page_size"`

	Order    OrderConfig    `toml:"order"`
	DynamoDB DynamoDBConfig `toml:"dynamodb"`
	Remote   RemoteConfig   `toml:"remote"`

	// Logging configuration
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	LogTimestamps bool   `toml:"log_timestamps"`
	LogCaller     bool   `toml:"log_caller"`

	// Project root (computed)
	ProjectRoot string `toml:"-"`
}

// OrderConfig holds the key space tunables. Zero values take the defaults
// of package orderindex.
type OrderConfig struct {
	Gap           int64 `toml:"gap"`
	MinGap        int64 `toml:"min_gap"`
	Window        int   `toml:"window"`
	LeadingWindow int   `toml:"leading_window"`
	LeadingSpan   int   `toml:"leading_span"`
	MaxWindow     int   `toml:"max_window"`
}

// DynamoDBConfig selects the DynamoDB table.
type DynamoDBConfig struct {
	Table     string  `toml:"table"`
	Region    string  `toml:"region"`
	Endpoint  string  `toml:"endpoint"`
	WriteRate float64 `toml:"write_rate"`
}

// RemoteConfig holds the S3-compatible endpoint for minio:// task files.
type RemoteConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	Secure    bool   `toml:"secure"`
}

// Space returns the key space described by the order settings.
func (c *Config) Space() orderindex.Space {
	return orderindex.Space{
		Gap:           orderindex.Key(c.Order.Gap),
		MinGap:        orderindex.Key(c.Order.MinGap),
		Window:        c.Order.Window,
		LeadingWindow: c.Order.LeadingWindow,
		LeadingSpan:   c.Order.LeadingSpan,
		MaxWindow:     c.Order.MaxWindow,
	}.WithDefaults()
}

// ParseStoreKind accepts memory, file and dynamodb.
func ParseStoreKind(s string) (StoreKind, error) {
	switch k := StoreKind(strings.ToLower(strings.TrimSpace(s))); k {
	case StoreMemory, StoreFile, StoreDynamoDB:
		return k, nil
	case "dynamo", "ddb":
		return StoreDynamoDB, nil
	default:
		return "", fmt.Errorf("invalid store %q, must be one of: memory, file, dynamodb", s)
	}
}

// Validate reports every inconsistent setting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.User) == "" {
		errs = append(errs, errors.New("user is empty"))
	}
	if _, err := ParseStoreKind(string(c.Store)); err != nil {
		errs = append(errs, err)
	}
	if c.Store == StoreFile && c.TodoFile == "" {
		errs = append(errs, errors.New("todo_file is empty"))
	}
	if c.Store == StoreDynamoDB && c.DynamoDB.Table == "" {
		errs = append(errs, errors.New("dynamodb.table is empty"))
	}
	if c.PageSize < 0 {
		errs = append(errs, fmt.Errorf("page_size must not be negative, got %d", c.PageSize))
	}
	if err := c.Space().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("order: %w", err))
	}
	return errors.Join(errs...)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	cfg.User = DefaultUser
	if u := os.Getenv("USER"); u != "" {
		cfg.User = u
	}
	cfg.Store = DefaultStore
	cfg.TodoFile = DefaultTodoFile
	cfg.LogDir = DefaultLogDir
	cfg.Listen = DefaultListen
	cfg.PageSize = DefaultPageSize
	cfg.DynamoDB.Table = DefaultTable

	space := orderindex.DefaultSpace()
	cfg.Order = OrderConfig{
		Gap:           int64(space.Gap),
		MinGap:        int64(space.MinGap),
		Window:        space.Window,
		LeadingWindow: space.LeadingWindow,
		LeadingSpan:   space.LeadingSpan,
		MaxWindow:     space.MaxWindow,
	}

	cfg.LogLevel = "info"
	cfg.LogFormat = "text"
}

// configFields returns the list of configurable field names for source tracking.
func configFields() []string {
	return []string{
		"user",
		"store",
		"todo_file",
		"schema_file",
		"log_dir",
		"listen",
		"page_size",
		"order.gap",
		"order.min_gap",
		"order.window",
		"order.leading_window",
		"order.leading_span",
		"order.max_window",
		"dynamodb.table",
		"dynamodb.region",
		"dynamodb.endpoint",
		"dynamodb.write_rate",
		"remote.endpoint",
		"remote.access_key",
		"remote.secret_key",
		"remote.region",
		"remote.secure",
		"log_level",
		"log_format",
		"log_timestamps",
		"log_caller",
	}
}
