// Package config handles configuration loading and defaults.
//
// Configuration is loaded from multiple sources in priority order:
// 1. Built-in defaults
// 2. User config file (~/.ordo/ordo.toml or OS-specific config directory)
// 3. Project config file (ordo.toml or .ordo.toml in the working directory)
// 4. Environment variables (ORDO_*)
// 5. CLI flags
//
// Each level overrides the previous one, so CLI flags take precedence.
//
// User-level config locations:
// - ~/.ordo/ordo.toml (preferred)
// - Windows: %APPDATA%\ordo\ordo.toml
// - macOS: ~/Library/Application Support/ordo/ordo.toml
// - Linux/BSD: $XDG_CONFIG_HOME/ordo/ordo.toml or ~/.config/ordo/ordo.toml
package config
