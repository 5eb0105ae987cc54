// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Durations are written the way time.ParseDuration reads them ("3s", "30s").
package config
