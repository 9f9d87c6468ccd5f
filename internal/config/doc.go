// Package config loads, normalizes, and validates pitchcam configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional pitchcam.env file, and
// honours environment overrides such as PITCHCAM_NODE_ID and DEV_MODE. The
// Config type centralizes every knob the node daemon, the station daemon and
// the CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical role names, and clear validation errors.
package config
