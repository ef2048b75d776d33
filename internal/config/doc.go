// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Variables can also come from .env files loaded with LoadEnvFiles before Load.
package config
