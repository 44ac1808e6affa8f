package safety

// SensorSnapshot holds already-acquired sensor readings. A nil field means the
// reading is absent and its condition is not evaluated.
type SensorSnapshot struct {
	Distance    *float64 `json:"distance,omitempty"`    // obstacle clearance, cm
	Force       *float64 `json:"force,omitempty"`       // applied force, N
	Temperature *float64 `json:"temperature,omitempty"` // motor temperature, °C
}

// Reading returns a pointer to v for building snapshots.
func Reading(v float64) *float64 { return &v }

// EmergencyLimits are the fixed thresholds for the emergency policy.
type EmergencyLimits struct {
	MaxSpeed       float64 `json:"max_speed"` // degrees/second; no reading evaluates it yet
	MinClearance   float64 `json:"min_clearance"`
	MaxForce       float64 `json:"max_force"`
	MaxTemperature float64 `json:"max_temperature"`
}

// DefaultEmergencyLimits returns the stock thresholds.
func DefaultEmergencyLimits() EmergencyLimits {
	return EmergencyLimits{
		MaxSpeed:       50,
		MinClearance:   5,
		MaxForce:       10,
		MaxTemperature: 70,
	}
}

// Check evaluates clearance, force and temperature in that order and returns
// the first violation. It holds no state.
func (l EmergencyLimits) Check(s SensorSnapshot) (bool, error) {
	if s.Distance != nil && *s.Distance < l.MinClearance {
		return false, &EmergencyConditionError{Kind: EmergencyObstacle, Value: *s.Distance, Threshold: l.MinClearance}
	}
	if s.Force != nil && *s.Force > l.MaxForce {
		return false, &EmergencyConditionError{Kind: EmergencyForce, Value: *s.Force, Threshold: l.MaxForce}
	}
	if s.Temperature != nil && *s.Temperature > l.MaxTemperature {
		return false, &EmergencyConditionError{Kind: EmergencyTemperature, Value: *s.Temperature, Threshold: l.MaxTemperature}
	}
	return true, nil
}

// CheckEmergencyConditions evaluates s against DefaultEmergencyLimits.
func CheckEmergencyConditions(s SensorSnapshot) (bool, error) {
	return DefaultEmergencyLimits().Check(s)
}
