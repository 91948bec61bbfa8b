// Package station holds the validated in-memory model of the backend's
// station readings and the bounded payload parser that produces it.
package station

import "time"

// MaxStations is the most stations a payload may contribute to one display.
const MaxStations = 3

// Reading is one station's observation. Optional fields are nil when the
// backend sent null or the value failed validation.
type Reading struct {
	StationID     string
	WindSpeed     *float64 // m/s
	WindDirection *float64 // degrees, 0-360
	Temperature   *float64 // °C
	Timestamp     int64    // epoch seconds, 0 if unknown

	// Missing marks a placeholder for a station the backend returned with
	// every field null.
	Missing bool
}

// ObservedAt returns the reading timestamp, or the zero time if unknown.
func (r Reading) ObservedAt() time.Time {
	if r.Timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(r.Timestamp, 0).UTC()
}

// HasData reports whether any measured value is present.
func (r Reading) HasData() bool {
	return r.WindSpeed != nil || r.WindDirection != nil || r.Temperature != nil
}
