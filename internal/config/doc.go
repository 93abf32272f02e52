// Package config provides YAML configuration loading and validation for the
// voice pipeline daemon. Missing keys fall back to Default.
package config
