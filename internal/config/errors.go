package config

import "errors"

// Configuration validation errors returned by Config.Validate
var (
	ErrInvalidAutosave  = errors.New("invalid autosave interval: must be non-negative")
	ErrInvalidRateLimit = errors.New("invalid API rate limit: rate must be positive and burst at least 1")
	ErrInvalidPort      = errors.New("invalid port: must not be empty")
	ErrInvalidTimeout   = errors.New("invalid timeout: must be non-negative")
)

// ErrConfigNotFound is returned when an explicitly requested config file does not exist
var ErrConfigNotFound = errors.New("configuration file not found")
