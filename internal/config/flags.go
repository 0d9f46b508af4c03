package config

import (
	"flag"
)

// flagToSource maps flag names to config field names for source tracking.
var flagToSource = map[string]string{
	"user":           "user",
	"store":          "store",
	"todo":           "todo_file",
	"schema":         "schema_file",
	"log-dir":        "log_dir",
	"log-level":      "log_level",
	"log-format":     "log_format",
	"log-timestamps": "log_timestamps",
	"log-caller":     "log_caller",
}

// parseFlags defines the global flags on fs, parses args and records the
// flags that were set explicitly. Flag defaults are the values already
// resolved from files and environment, so unset flags change nothing.
func parseFlags(cfg *Config, fs *flag.FlagSet, args []string, sources map[string]ConfigSource) error {
	if fs == nil {
		fs = flag.NewFlagSet("ordo", flag.ContinueOnError)
	}

	store := string(cfg.Store)
	fs.StringVar(&cfg.User, "user", cfg.User, "User whose tasks to act on")
	fs.StringVar(&store, "store", store, "Task store: memory, file or dynamodb")
	fs.StringVar(&cfg.TodoFile, "todo", cfg.TodoFile, "Path to task file (or minio://bucket/key)")
	fs.StringVar(&cfg.SchemaFile, "schema", cfg.SchemaFile, "Path to schema file (empty uses the embedded schema)")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Log directory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text, json, logfmt")
	fs.BoolVar(&cfg.LogTimestamps, "log-timestamps", cfg.LogTimestamps, "Include timestamps in log output")
	fs.BoolVar(&cfg.LogCaller, "log-caller", cfg.LogCaller, "Include caller location in log output")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Store = StoreKind(store)

	fs.Visit(func(f *flag.Flag) {
		if sources == nil {
			return
		}
		if fieldName, ok := flagToSource[f.Name]; ok {
			sources[fieldName] = SourceFlag
		}
	})
	return nil
}
