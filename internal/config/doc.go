// Package config loads, normalizes, and validates psorcast configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the PSORCAST_NTFY_TOPIC
// environment fallback. The Config type centralizes every knob the CLI and
// the frame watcher daemon need: directories, compositor timing, encoder
// binaries, and reminder delivery.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
