package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// envBinding maps an environment variable onto a config field.
type envBinding struct {
	name  string
	field string
	apply func(cfg *Config, v string) error
}

func stringEnv(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func intEnv(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func int64Env(dst func(*Config) *int64) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func floatEnv(dst func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func boolEnv(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = boolFromString(v)
		return nil
	}
}

func envBindings() []envBinding {
	return []envBinding{
		{"ORDO_USER", "user", stringEnv(func(c *Config) *string { return &c.User })},
		{"ORDO_STORE", "store", func(c *Config, v string) error {
			kind, err := ParseStoreKind(v)
			if err != nil {
				return err
			}
			c.Store = kind
			return nil
		}},
		{"ORDO_TODO", "todo_file", stringEnv(func(c *Config) *string { return &c.TodoFile })},
		{"ORDO_SCHEMA", "schema_file", stringEnv(func(c *Config) *string { return &c.SchemaFile })},
		{"ORDO_LOG_DIR", "log_dir", stringEnv(func(c *Config) *string { return &c.LogDir })},
		{"ORDO_LISTEN", "listen", stringEnv(func(c *Config) *string { return &c.Listen })},
		{"ORDO_PAGE_SIZE", "page_size", intEnv(func(c *Config) *int { return &c.PageSize })},

		{"ORDO_ORDER_GAP", "order.gap", int64Env(func(c *Config) *int64 { return &c.Order.Gap })},
		{"ORDO_ORDER_MIN_GAP", "order.min_gap", int64Env(func(c *Config) *int64 { return &c.Order.MinGap })},
		{"ORDO_ORDER_WINDOW", "order.window", intEnv(func(c *Config) *int { return &c.Order.Window })},
		{"ORDO_ORDER_LEADING_WINDOW", "order.leading_window", intEnv(func(c *Config) *int { return &c.Order.LeadingWindow })},
		{"ORDO_ORDER_LEADING_SPAN", "order.leading_span", intEnv(func(c *Config) *int { return &c.Order.LeadingSpan })},
		{"ORDO_ORDER_MAX_WINDOW", "order.max_window", intEnv(func(c *Config) *int { return &c.Order.MaxWindow })},

		{"ORDO_DYNAMODB_TABLE", "dynamodb.table", stringEnv(func(c *Config) *string { return &c.DynamoDB.Table })},
		{"ORDO_DYNAMODB_REGION", "dynamodb.region", stringEnv(func(c *Config) *string { return &c.DynamoDB.Region })},
		{"ORDO_DYNAMODB_ENDPOINT", "dynamodb.endpoint", stringEnv(func(c *Config) *string { return &c.DynamoDB.Endpoint })},
		{"ORDO_DYNAMODB_WRITE_RATE", "dynamodb.write_rate", floatEnv(func(c *Config) *float64 { return &c.DynamoDB.WriteRate })},

		{"ORDO_REMOTE_ENDPOINT", "remote.endpoint", stringEnv(func(c *Config) *string { return &c.Remote.Endpoint })},
		{"ORDO_REMOTE_ACCESS_KEY", "remote.access_key", stringEnv(func(c *Config) *string { return &c.Remote.AccessKey })},
		{"ORDO_REMOTE_SECRET_KEY", "remote.secret_key", stringEnv(func(c *Config) *string { return &c.Remote.SecretKey })},
		{"ORDO_REMOTE_REGION", "remote.region", stringEnv(func(c *Config) *string { return &c.Remote.Region })},
		{"ORDO_REMOTE_SECURE", "remote.secure", boolEnv(func(c *Config) *bool { return &c.Remote.Secure })},

		{"ORDO_LOG_LEVEL", "log_level", stringEnv(func(c *Config) *string { return &c.LogLevel })},
		{"ORDO_LOG_FORMAT", "log_format", stringEnv(func(c *Config) *string { return &c.LogFormat })},
		{"ORDO_LOG_TIMESTAMPS", "log_timestamps", boolEnv(func(c *Config) *bool { return &c.LogTimestamps })},
		{"ORDO_LOG_CALLER", "log_caller", boolEnv(func(c *Config) *bool { return &c.LogCaller })},
	}
}

// loadFromEnv overrides config from ORDO_* environment variables.
func loadFromEnv(cfg *Config, sources map[string]ConfigSource) error {
	for _, b := range envBindings() {
		v := os.Getenv(b.name)
		if v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
		if sources != nil {
			sources[b.field] = SourceEnv
		}
	}
	return nil
}

// boolFromString parses a boolean from a string.
func boolFromString(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}
