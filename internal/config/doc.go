// Package config loads, normalizes, and validates mediarepo configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for secrets
// such as the tagging API key. The Config type centralizes every knob the
// daemon and CLI need: data directories, the SQLite store, blob storage,
// external analysis service endpoints, and pipeline limits.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
