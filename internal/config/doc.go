// Package config loads, normalizes, and validates ChromaScale configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// CHROMASCALE_INPUT_DIR. The Config type is loaded once at startup and treated
// as immutable by the pipeline; Set rewrites the file for the CLI and takes
// effect on the next start.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
