// Package config loads Sentinel's runtime configuration.
//
// Configuration is environment-first: every setting has a SENTINEL_* variable.
// An optional YAML file (SENTINEL_CONFIG_FILE) supplies a base layer for
// deployments that prefer files; environment variables always win.
package config
