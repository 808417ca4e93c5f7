// Package visit implements the geofenced check-in / check-out lifecycle.
// All guards run server side; a stale client cannot skip or repeat a
// transition.
package visit

import (
	"errors"
	"fmt"
	"time"

	"github.com/anzarahmad52/salesman-journey/internal/geo"
	"github.com/anzarahmad52/salesman-journey/internal/model"
)

// DefaultGeofenceRadiusM is the check-in gate: the device must be within
// this many meters of the customer's registered position. The boundary is
// inclusive.
const DefaultGeofenceRadiusM = 100.0

// Accuracy flag cutoffs, in meters of positional deviation.
const (
	GoodAccuracyM   = 20.0
	MediumAccuracyM = 50.0
)

const (
	AccuracyGood    = "good"
	AccuracyMedium  = "medium"
	AccuracyPoor    = "poor"
	AccuracyUnknown = "unknown"
)

// Lifecycle ordering violations.
var (
	ErrAlreadyCheckedIn  = errors.New("visit already checked in")
	ErrAlreadyCheckedOut = errors.New("visit already checked out")
	ErrNotCheckedIn      = errors.New("visit has no check-in to close")
)

// MissingLocationError rejects a check-in against a customer whose
// registered position is unset. An unlocated customer cannot be geofenced.
type MissingLocationError struct {
	CustomerID string
}

func (e *MissingLocationError) Error() string {
	return fmt.Sprintf("customer %s has no registered location", e.CustomerID)
}

// OutOfRangeError rejects a check-in from outside the geofence. DistanceM
// carries the measured distance so the caller can show it.
type OutOfRangeError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("device is %.1f m from customer, limit %.0f m", e.DistanceM, e.RadiusM)
}

// GeolocationError rejects a check-in whose device could not produce a
// position. Reason is "denied" or "unsupported".
type GeolocationError struct {
	Reason string
}

func (e *GeolocationError) Error() string {
	switch e.Reason {
	case "denied":
		return "location permission denied on device"
	case "unsupported":
		return "device does not support geolocation"
	}
	return "geolocation unavailable: " + e.Reason
}

// AccuracyFlag buckets a positional deviation for reporting. Nil or
// non-positive deviations are unknown (legacy rows without a measurement).
func AccuracyFlag(accuracyM *float64) string {
	if accuracyM == nil || *accuracyM <= 0 {
		return AccuracyUnknown
	}
	switch {
	case *accuracyM <= GoodAccuracyM:
		return AccuracyGood
	case *accuracyM <= MediumAccuracyM:
		return AccuracyMedium
	default:
		return AccuracyPoor
	}
}

// CheckIn validates and applies the not_started -> checked_in transition.
// Validation order is fixed: lifecycle state, then geolocation failure, then
// customer location, then the geofence gate. Nothing is written to the visit
// until every gate passes.
func CheckIn(v *model.Visit, cust model.Customer, req model.CheckInRequest, radiusM float64, now time.Time) error {
	if v.CheckOutTime != nil {
		return ErrAlreadyCheckedOut
	}
	if v.CheckInTime != nil {
		return ErrAlreadyCheckedIn
	}
	if req.Failure != "" {
		return &GeolocationError{Reason: req.Failure}
	}
	if req.Position == nil {
		return &GeolocationError{Reason: "unsupported"}
	}
	if !cust.Location.HasLocation() {
		return &MissingLocationError{CustomerID: cust.ID}
	}
	if radiusM <= 0 {
		radiusM = DefaultGeofenceRadiusM
	}

	dist := geo.Haversine(req.Position.Lat, req.Position.Lng, cust.Location.Lat, cust.Location.Lng)
	if dist > radiusM {
		return &OutOfRangeError{DistanceM: dist, RadiusM: radiusM}
	}

	t := now.UTC()
	v.CheckInTime = &t
	v.Location = fmt.Sprintf("%v, %v", req.Position.Lat, req.Position.Lng)
	v.AccuracyM = &dist
	return nil
}

// CheckOut validates and applies the checked_in -> checked_out transition.
func CheckOut(v *model.Visit, now time.Time) error {
	if v.CheckOutTime != nil {
		return ErrAlreadyCheckedOut
	}
	if v.CheckInTime == nil {
		return ErrNotCheckedIn
	}
	t := now.UTC()
	if t.Before(*v.CheckInTime) {
		t = *v.CheckInTime
	}
	v.CheckOutTime = &t
	return nil
}
