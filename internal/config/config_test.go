// Package config tests configuration loading.
package config

import (
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	"github.com/nibzard/ordo/internal/orderindex"
)

func TestDefaults(t *testing.T) {
	t.Setenv("USER", "alice")
	cfg := &Config{}
	setDefaults(cfg)

	if cfg.User != "alice" {
		t.Errorf("User: got %q, want alice", cfg.User)
	}
	if cfg.TodoFile != DefaultTodoFile {
		t.Errorf("TodoFile: got %q, want %q", cfg.TodoFile, DefaultTodoFile)
	}
	if cfg.Store != StoreFile {
		t.Errorf("Store: got %q, want file", cfg.Store)
	}
	if got := cfg.Space(); got != orderindex.DefaultSpace() {
		t.Errorf("Space: got %+v, want defaults", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDefaultUserFallback(t *testing.T) {
	t.Setenv("USER", "")
	cfg := &Config{}
	setDefaults(cfg)
	if cfg.User != DefaultUser {
		t.Errorf("User: got %q, want %q", cfg.User, DefaultUser)
	}
}

func TestSpaceZeroValuesTakeDefaults(t *testing.T) {
	cfg := &Config{Order: OrderConfig{Gap: 100}}
	space := cfg.Space()
	if space.Gap != 100 {
		t.Errorf("Gap: got %d, want 100", space.Gap)
	}
	if space.Window != orderindex.DefaultWindow {
		t.Errorf("Window: got %d, want %d", space.Window, orderindex.DefaultWindow)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty user", func(c *Config) { c.User = " " }, "user is empty"},
		{"bad store", func(c *Config) { c.Store = "redis" }, "invalid store"},
		{"no table", func(c *Config) { c.Store = StoreDynamoDB; c.DynamoDB.Table = "" }, "dynamodb.table"},
		{"negative page", func(c *Config) { c.PageSize = -1 }, "page_size"},
		{"min gap too small", func(c *Config) { c.Order.MinGap = 1 }, "order:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			cfg.User = "me"
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseStoreKind(t *testing.T) {
	tests := []struct {
		input   string
		want    StoreKind
		wantErr bool
	}{
		{"memory", StoreMemory, false},
		{"FILE", StoreFile, false},
		{" dynamodb ", StoreDynamoDB, false},
		{"ddb", StoreDynamoDB, false},
		{"sqlite", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStoreKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStoreKind(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseStoreKind(%q): got %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ORDO_TODO", "env-tasks.json")
	t.Setenv("ORDO_STORE", "memory")
	t.Setenv("ORDO_ORDER_GAP", "500")
	t.Setenv("ORDO_DYNAMODB_WRITE_RATE", "2.5")
	t.Setenv("ORDO_REMOTE_SECURE", "no")
	t.Setenv("ORDO_LOG_CALLER", "yes")

	cfg := &Config{}
	setDefaults(cfg)
	cfg.Remote.Secure = true
	sources := map[string]ConfigSource{}
	if err := loadFromEnv(cfg, sources); err != nil {
		t.Fatalf("loadFromEnv: %v", err)
	}

	if cfg.TodoFile != "env-tasks.json" {
		t.Errorf("TodoFile: got %q, want env-tasks.json", cfg.TodoFile)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("Store: got %q, want memory", cfg.Store)
	}
	if cfg.Order.Gap != 500 {
		t.Errorf("Order.Gap: got %d, want 500", cfg.Order.Gap)
	}
	if cfg.DynamoDB.WriteRate != 2.5 {
		t.Errorf("WriteRate: got %v, want 2.5", cfg.DynamoDB.WriteRate)
	}
	if cfg.Remote.Secure {
		t.Error("Remote.Secure: got true, want false")
	}
	if !cfg.LogCaller {
		t.Error("LogCaller: got false, want true")
	}
	if sources["order.gap"] != SourceEnv {
		t.Errorf("order.gap source: got %q, want environment", sources["order.gap"])
	}
}

func TestLoadFromEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("ORDO_ORDER_WINDOW", "twenty")
	cfg := &Config{}
	setDefaults(cfg)
	err := loadFromEnv(cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "ORDO_ORDER_WINDOW") {
		t.Fatalf("expected ORDO_ORDER_WINDOW error, got %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "ordo.toml")

	content := []byte(`todo_file = "custom.json"
store = "dynamodb"

[order]
gap = 64

[dynamodb]
table = "tasks-test"
`)
	if err := os.WriteFile(configFile, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{}
	setDefaults(cfg)
	sources := map[string]ConfigSource{}
	if err := loadConfigFile(cfg, configFile, sources, SourceProjFile); err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}

	if cfg.TodoFile != "custom.json" {
		t.Errorf("TodoFile: got %q, want custom.json", cfg.TodoFile)
	}
	if cfg.Order.Gap != 64 {
		t.Errorf("Order.Gap: got %d, want 64", cfg.Order.Gap)
	}
	if cfg.Order.Window != orderindex.DefaultWindow {
		t.Errorf("Order.Window: got %d, want default kept", cfg.Order.Window)
	}
	if cfg.DynamoDB.Table != "tasks-test" {
		t.Errorf("DynamoDB.Table: got %q, want tasks-test", cfg.DynamoDB.Table)
	}
	if sources["order.gap"] != SourceProjFile {
		t.Errorf("order.gap source: got %q, want project file", sources["order.gap"])
	}
	if _, ok := sources["order.window"]; ok {
		t.Errorf("order.window should not be attributed to the file")
	}
}

func TestLoadConfigFileUnknownKey(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "ordo.toml")
	if err := os.WriteFile(configFile, []byte("max_items = 5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := &Config{}
	err := loadConfigFile(cfg, configFile, map[string]ConfigSource{}, SourceUserFile)
	if err == nil || !strings.Contains(err.Error(), "max_items") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestExampleConfigDecodes(t *testing.T) {
	cfg := &Config{}
	md, err := toml.Decode(ExampleConfig(), cfg)
	if err != nil {
		t.Fatalf("decode example: %v", err)
	}
	if len(md.Undecoded()) > 0 {
		t.Errorf("example has unknown keys: %v", md.Undecoded())
	}
	cfg.User = "me"
	if err := cfg.Validate(); err != nil {
		t.Errorf("example does not validate: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"~", home},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}
	if runtime.GOOS == "windows" {
		t.Setenv("ORDO_TEST_HOME", home)
		tests = append(tests, struct {
			input string
			want  string
		}{`%ORDO_TEST_HOME%\logs`, filepath.Join(home, "logs")})
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := expandPath(tt.input)
			if got != tt.want {
				t.Errorf("expandPath(%q): got %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.LogLevel = "warn"

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	args := []string{
		"--todo", "flag-tasks.json",
		"--store", "memory",
		"--user", "bob",
		"ls", "--all",
	}

	sources := map[string]ConfigSource{}
	if err := parseFlags(cfg, fs, args, sources); err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	if cfg.TodoFile != "flag-tasks.json" {
		t.Errorf("TodoFile: got %q, want flag-tasks.json", cfg.TodoFile)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("Store: got %q, want memory", cfg.Store)
	}
	if cfg.User != "bob" {
		t.Errorf("User: got %q, want bob", cfg.User)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel: got %q, want unset flag to keep warn", cfg.LogLevel)
	}
	if sources["user"] != SourceFlag {
		t.Errorf("user source: got %q, want flag", sources["user"])
	}
	if _, ok := sources["log_level"]; ok {
		t.Error("log_level should not be attributed to flags")
	}
	if rest := fs.Args(); len(rest) != 2 || rest[0] != "ls" {
		t.Errorf("remaining args: got %v, want [ls --all]", rest)
	}
}

func TestLoadWithSources(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("APPDATA", filepath.Join(dir, "appdata"))
	t.Setenv("ORDO_LOG_LEVEL", "debug")
	t.Chdir(dir)

	if err := os.WriteFile("ordo.toml", []byte("todo_file = \"tasks.json\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cws, err := LoadWithSources(fs, []string{"-todo", "minio://bucket/tasks.json"})
	if err != nil {
		t.Fatalf("LoadWithSources: %v", err)
	}

	cfg := cws.Config
	if cfg.TodoFile != "minio://bucket/tasks.json" {
		t.Errorf("TodoFile: got %q, object location should be kept as is", cfg.TodoFile)
	}
	if cws.Sources["todo_file"] != SourceFlag {
		t.Errorf("todo_file source: got %q, want flag", cws.Sources["todo_file"])
	}
	if cws.Sources["log_level"] != SourceEnv {
		t.Errorf("log_level source: got %q, want environment", cws.Sources["log_level"])
	}
	if cws.Sources["listen"] != SourceDefault {
		t.Errorf("listen source: got %q, want default", cws.Sources["listen"])
	}
	if got := cws.GetConfigFile(); got != "ordo.toml" {
		t.Errorf("GetConfigFile: got %q, want ordo.toml", got)
	}
	if !filepath.IsAbs(cfg.LogDir) {
		t.Errorf("LogDir: got %q, want absolute", cfg.LogDir)
	}
}

func TestFinalizeResolvesRelativePaths(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{Store: StoreFile, TodoFile: "tasks.json", LogDir: "logs", ProjectRoot: root}
	if err := finalizeConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.TodoFile != filepath.Join(root, "tasks.json") {
		t.Errorf("TodoFile: got %q", cfg.TodoFile)
	}
	if cfg.LogDir != filepath.Join(root, "logs") {
		t.Errorf("LogDir: got %q", cfg.LogDir)
	}
	if cfg.SchemaFile != "" {
		t.Errorf("SchemaFile: got %q, want empty kept", cfg.SchemaFile)
	}
}

func TestBoolFromString(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{"yes", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"no", false},
		{"off", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := boolFromString(tt.input)
			if got != tt.want {
				t.Errorf("boolFromString(%q): got %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
