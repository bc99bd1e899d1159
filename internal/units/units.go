// Package units converts display speeds. All internal computation and
// storage is in meters per second; conversion happens only at the edges
// (API responses, reports, result files).
package units

import "fmt"

// Supported display units.
const (
	MPS  = "mps"  // meters per second (canonical)
	KMPS = "kmps" // kilometers per second, the usual unit for orbital speed
	KPH  = "kph"  // kilometers per hour
	MPH  = "mph"  // miles per hour
)

// Valid lists every accepted unit value, in the order shown to users.
var Valid = []string{MPS, KMPS, KPH, MPH}

// IsValid reports whether unit names a supported display unit.
func IsValid(unit string) bool {
	for _, v := range Valid {
		if unit == v {
			return true
		}
	}
	return false
}

// ValidString returns the accepted unit values for error messages.
func ValidString() string {
	return "mps, kmps, kph, mph"
}

// Convert converts a speed in meters per second to the target unit.
// Unknown units pass the value through unchanged.
func Convert(speedMPS float64, unit string) float64 {
	switch unit {
	case KMPS:
		return speedMPS / 1000
	case KPH:
		return speedMPS * 3.6
	case MPH:
		return speedMPS * 2.2369362920544
	default:
		return speedMPS
	}
}

// Format renders a speed in meters per second as a display string with
// five significant figures in the target unit, e.g. "7.5231 kmps".
func Format(speedMPS float64, unit string) string {
	if !IsValid(unit) {
		unit = MPS
	}
	return fmt.Sprintf("%#.5g %s", Convert(speedMPS, unit), unit)
}
