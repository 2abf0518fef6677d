// Package config loads, normalizes, and validates vidgrab configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a .env file, and honours environment
// overrides such as VIDGRAB_PUBLIC_BASE_URL. The Config type centralizes every
// knob the daemon and CLI need, from the worker pool size to the ffmpeg target.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
