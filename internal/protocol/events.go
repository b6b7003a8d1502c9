// Package protocol defines the messages exchanged with the garden controller.
//
// Inbound events form a closed set: every wire type has exactly one Go type
// implementing Event, and Decode returns ErrUnknownType for anything else.
package protocol

// Wire names of inbound events.
const (
	TypeIrrigationDecision      = "IRRIGATION_DECISION"
	TypeIrrigationStarted       = "IRRIGATION_STARTED"
	TypeOpenValveSuccess        = "OPEN_VALVE_SUCCESS"
	TypeOpenValveFail           = "OPEN_VALVE_FAIL"
	TypeCloseValveSuccess       = "CLOSE_VALVE_SUCCESS"
	TypeCloseValveFail          = "CLOSE_VALVE_FAIL"
	TypeIrrigateSuccess         = "IRRIGATE_SUCCESS"
	TypeIrrigateFail            = "IRRIGATE_FAIL"
	TypeIrrigateSkipped         = "IRRIGATE_SKIPPED"
	TypeStopIrrigationSuccess   = "STOP_IRRIGATION_SUCCESS"
	TypeStopIrrigationFail      = "STOP_IRRIGATION_FAIL"
	TypeValveBlocked            = "VALVE_BLOCKED"
	TypeRestartValveSuccess     = "RESTART_VALVE_SUCCESS"
	TypeRestartValveFail        = "RESTART_VALVE_FAIL"
	TypeGardenIrrigationStarted = "GARDEN_IRRIGATION_STARTED"
	TypeGardenIrrigationStopped = "GARDEN_IRRIGATION_STOPPED"
)

// Event is an inbound message from the controller.
type Event interface {
	Type() string
}

// Keys are the correlation fields an event may carry. Zero values mean absent.
type Keys struct {
	SessionID string
	PlantID   int64
	PlantName string
}

// IrrigationDecision reports whether the server decided to water a plant.
type IrrigationDecision struct {
	PlantID      ID     `json:"plant_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	WillIrrigate bool   `json:"will_irrigate"`
	Reason       string `json:"reason,omitempty"`
}

func (IrrigationDecision) Type() string { return TypeIrrigationDecision }

func (e IrrigationDecision) Keys() Keys {
	return Keys{SessionID: e.SessionID, PlantID: int64(e.PlantID)}
}

type IrrigationStarted struct {
	PlantID   ID     `json:"plantId,omitempty"`
	PlantName string `json:"plantName,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func (IrrigationStarted) Type() string { return TypeIrrigationStarted }

func (e IrrigationStarted) Keys() Keys {
	return Keys{SessionID: e.SessionID, PlantID: int64(e.PlantID), PlantName: e.PlantName}
}

// ValveData is the nested valve description some controllers send.
type ValveData struct {
	DurationMinutes float64 `json:"duration_minutes,omitempty"`
}

// ValveResult covers OPEN_VALVE_* and CLOSE_VALVE_* events.
type ValveResult struct {
	Kind            string     `json:"-"`
	PlantID         ID         `json:"plantId,omitempty"`
	PlantName       string     `json:"plantName,omitempty"`
	DurationMinutes float64    `json:"duration_minutes,omitempty"`
	ValveData       *ValveData `json:"valve_data,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

func (e ValveResult) Type() string { return e.Kind }

func (e ValveResult) Keys() Keys {
	return Keys{PlantID: int64(e.PlantID), PlantName: e.PlantName}
}

// Duration returns the confirmed duration in minutes, preferring valve_data.
func (e ValveResult) Duration() float64 {
	if e.ValveData != nil && e.ValveData.DurationMinutes > 0 {
		return e.ValveData.DurationMinutes
	}
	return e.DurationMinutes
}

// IrrigateResult covers IRRIGATE_SUCCESS, IRRIGATE_FAIL and IRRIGATE_SKIPPED.
type IrrigateResult struct {
	Kind      string `json:"-"`
	PlantID   ID     `json:"plantId,omitempty"`
	PlantName string `json:"plantName,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (e IrrigateResult) Type() string { return e.Kind }

func (e IrrigateResult) Keys() Keys {
	return Keys{SessionID: e.SessionID, PlantID: int64(e.PlantID), PlantName: e.PlantName}
}

// StopResult covers STOP_IRRIGATION_SUCCESS and STOP_IRRIGATION_FAIL.
type StopResult struct {
	Kind      string `json:"-"`
	PlantID   ID     `json:"plantId,omitempty"`
	PlantName string `json:"plantName,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (e StopResult) Type() string { return e.Kind }

func (e StopResult) Keys() Keys {
	return Keys{PlantID: int64(e.PlantID), PlantName: e.PlantName}
}

// ValveBlocked is a hardware fault report for a plant's valve.
type ValveBlocked struct {
	Message   string `json:"message"`
	PlantID   ID     `json:"plantId,omitempty"`
	PlantName string `json:"plantName,omitempty"`
}

func (ValveBlocked) Type() string { return TypeValveBlocked }

func (e ValveBlocked) Keys() Keys {
	return Keys{PlantID: int64(e.PlantID), PlantName: e.PlantName}
}

// RestartResult covers RESTART_VALVE_SUCCESS and RESTART_VALVE_FAIL.
type RestartResult struct {
	Kind      string `json:"-"`
	PlantID   ID     `json:"plantId,omitempty"`
	PlantName string `json:"plantName,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (e RestartResult) Type() string { return e.Kind }

func (e RestartResult) Keys() Keys {
	return Keys{PlantID: int64(e.PlantID), PlantName: e.PlantName}
}

// GardenIrrigation is a garden-wide broadcast that a plant started or stopped
// watering, whoever triggered it.
type GardenIrrigation struct {
	Kind            string  `json:"-"`
	PlantID         ID      `json:"plantId"`
	Mode            string  `json:"mode"`
	DurationMinutes float64 `json:"duration_minutes,omitempty"`
	PlantName       string  `json:"plantName,omitempty"`
	SessionID       string  `json:"sessionId,omitempty"`
}

func (e GardenIrrigation) Type() string { return e.Kind }

// Started reports whether the broadcast announces a start.
func (e GardenIrrigation) Started() bool {
	return e.Kind == TypeGardenIrrigationStarted
}
