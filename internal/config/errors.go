package config

import (
	"errors"
)

// Sentinel kinds wrapped by Load and Validate so callers can errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
