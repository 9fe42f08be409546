// Package geofence decides physical presence from a reported coordinate
// pair and an event's anchor. The decision is pure: no clock, no I/O.
package geofence

import (
	"math"

	"github.com/okian/meetstake/internal/domain/model"
)

// Geometry constants.
const (
	earthRadiusKM      = 6371.0 // mean Earth radius
	defaultThresholdKM = 0.2
	degToRad           = math.Pi / 180
)

// Decision is the outcome of a presence check.
type Decision string

// Possible decisions.
const (
	// Present means the reported location is within the threshold of the anchor.
	Present Decision = "present"
	// Absent means the reported location is outside the threshold.
	Absent Decision = "absent"
	// NotApplicable means the event has no anchor; presence is assumed.
	NotApplicable Decision = "not-applicable"
)

// Option applies a configuration option to the Verifier.
type Option func(*Verifier)

// WithThresholdKM overrides the presence radius in kilometers.
func WithThresholdKM(km float64) Option {
	return func(v *Verifier) {
		if km > 0 {
			v.thresholdKM = km
		}
	}
}

// Verifier performs threshold-distance presence checks.
type Verifier struct {
	thresholdKM float64
}

// New creates a Verifier with the default 0.2 km threshold.
func New(opts ...Option) *Verifier {
	v := &Verifier{
		thresholdKM: defaultThresholdKM,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// ThresholdKM returns the configured presence radius.
func (v *Verifier) ThresholdKM() float64 {
	return v.thresholdKM
}

// Verify compares the reported location against the anchor. A nil anchor
// yields NotApplicable. The threshold boundary is inclusive: a distance of
// exactly thresholdKM counts as present.
func (v *Verifier) Verify(reported model.Location, anchor *model.Location) Decision {
	if anchor == nil {
		return NotApplicable
	}
	if DistanceKM(reported, *anchor) <= v.thresholdKM {
		return Present
	}
	return Absent
}

// DistanceKM computes the great-circle distance between two coordinate
// pairs using the haversine formula with a mean Earth radius of 6371 km.
func DistanceKM(a, b model.Location) float64 {
	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}
