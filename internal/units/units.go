// Package units provides speed unit conversion and timestamp normalisation
// shared by the telemetry and capture readers.
package units

// Speed units understood by ConvertSpeed.
const (
	MPS  = "mps"
	KMPH = "kmph"
	KPH  = "kph"
)

// ConvertSpeed converts a speed from meters per second to the target units.
// Telemetry files carry enhanced_speed in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}
