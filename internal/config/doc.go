// Package config loads, normalizes, and validates mediapool configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// CLI needs: pool roots, per-user destination drives, rsync invocation
// settings, and prompt policy. Components receive an assembled *Config
// explicitly and never consult the environment themselves.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
