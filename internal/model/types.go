package model

import "time"

// Mode selects who controls a pump: the auto-control engine or an operator.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeAuto || m == ModeManual
}

// PumpStatus is the authoritative per-area pump state.
type PumpStatus struct {
	AreaName    string    `json:"area_name"`
	PumpID      string    `json:"pump_id"`
	Status      bool      `json:"status"`
	Mode        Mode      `json:"mode"`
	LastUpdated time.Time `json:"last_updated"`
}

// PumpID derives the stable actuator identifier for an area.
func PumpID(area string) string {
	return "pump_" + area
}

// CropSettings is per-area reference data describing the planted crop and
// its nominal target moisture percentage.
type CropSettings struct {
	AreaName        string  `json:"area_name"`
	CropName        string  `json:"crop_name"`
	OptimalMoisture float64 `json:"optimal_moisture"`
}
