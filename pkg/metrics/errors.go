package metrics

import (
	"errors"
)

// Sentinel kind for observation failures.
var (
	ErrObserveFailed = errors.New("metrics observe failed")
)
