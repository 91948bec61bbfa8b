// Package units converts backend readings into the units a region displays.
// The backend always reports wind speed in meters/second.
package units

import "fmt"

type Unit string

const (
	MetersPerSecond   Unit = "ms"
	KilometersPerHour Unit = "kmh"
	Knots             Unit = "kn"
)

const (
	msToKmh   = 3.6
	msToKnots = 1.94384
)

func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case MetersPerSecond, KilometersPerHour, Knots:
		return Unit(s), nil
	default:
		return "", fmt.Errorf("unknown wind unit %q (allowed: ms, kmh, kn)", s)
	}
}

// Label is the short suffix drawn next to a converted value.
func (u Unit) Label() string {
	switch u {
	case KilometersPerHour:
		return "km/h"
	case Knots:
		return "kn"
	default:
		return "m/s"
	}
}

// ToDisplayUnit converts a speed in meters/second to u. Unknown units are
// treated as meters/second.
func ToDisplayUnit(speedMS float64, u Unit) float64 {
	switch u {
	case KilometersPerHour:
		return speedMS * msToKmh
	case Knots:
		return speedMS * msToKnots
	default:
		return speedMS
	}
}

// Convert is ToDisplayUnit for optional readings. A nil speed stays nil.
func Convert(speedMS *float64, u Unit) *float64 {
	if speedMS == nil {
		return nil
	}
	v := ToDisplayUnit(*speedMS, u)
	return &v
}

// TempRange bounds physically plausible temperatures in °C, inclusive.
type TempRange struct {
	Min float64
	Max float64
}

func (r TempRange) Valid(c float64) bool {
	return c >= r.Min && c <= r.Max
}

// Compass maps a bearing in degrees to a 16-point compass label.
func Compass(deg float64) string {
	points := [...]string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
		"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}
	idx := int((deg+11.25)/22.5) % len(points)
	if idx < 0 {
		idx += len(points)
	}
	return points[idx]
}
