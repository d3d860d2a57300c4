// Package config loads and validates the conductor TOML configuration.
package config
