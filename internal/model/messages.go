package model

// Message type discriminators carried in the "type" field of every frame
// exchanged on a WebSocket session.
const (
	MsgPumpControl             = "pump_control"
	MsgSoilMoistureUpdate      = "soil_moisture_update"
	MsgRequestOptimalMoisture  = "request_optimal_moisture"
	MsgPumpStatusUpdate        = "pump_status_update"
	MsgOptimalMoistureResponse = "optimal_moisture_response"
)

// PumpStatusUpdate is pushed to a session whenever its area's authoritative
// state changes (and once on connect).
type PumpStatusUpdate struct {
	Type string `json:"type"`
	PumpStatus
}

// NewPumpStatusUpdate wraps a status row in its wire envelope.
func NewPumpStatusUpdate(ps PumpStatus) PumpStatusUpdate {
	return PumpStatusUpdate{Type: MsgPumpStatusUpdate, PumpStatus: ps}
}

// OptimalMoistureResponse answers a request_optimal_moisture message.
// Status is "success" when crop settings exist for the area, "error" otherwise.
type OptimalMoistureResponse struct {
	Type            string   `json:"type"`
	Status          string   `json:"status"`
	CropName        string   `json:"crop_name,omitempty"`
	OptimalMoisture *float64 `json:"optimal_moisture,omitempty"`
}
