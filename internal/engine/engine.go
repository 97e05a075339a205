// Package engine holds the pure pump decision logic. It performs no I/O:
// callers load state and settings, engine computes the desired pump state.
package engine

import "irrisync/irrigation-server/internal/model"

// MoistureBuffer is the fixed margin added to a crop's nominal optimal
// moisture. The pump runs while soil is drier than optimal plus this buffer,
// so watering stops a little above the nominal target rather than at it.
const MoistureBuffer = 10.0

// TargetMoisture returns the effective threshold for a crop's optimal value.
func TargetMoisture(optimalMoisture float64) float64 {
	return optimalMoisture + MoistureBuffer
}

// Decide computes the desired pump state for a new moisture observation.
// In manual mode the engine makes no decision: desired equals the current
// status and changed is false. In auto mode the pump should run exactly when
// the observation is below the target threshold; changed reports whether the
// desired state differs from the current one, so callers can skip redundant
// writes and broadcasts.
func Decide(mode model.Mode, currentStatus bool, optimalMoisture, observedMoisture float64) (desired, changed bool) {
	if mode != model.ModeAuto {
		return currentStatus, false
	}

	desired = observedMoisture < TargetMoisture(optimalMoisture)
	return desired, desired != currentStatus
}
