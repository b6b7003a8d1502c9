package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrUnknownType is returned by Decode for a wire type outside the closed set.
var ErrUnknownType = errors.New("unknown message type")

// Envelope is the JSON frame every message travels in.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ID is a plant identifier as sent by the controller. Some firmware sends it
// as a JSON number, some as a string; both decode to the same value.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = 0
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("invalid plant id %s: %w", raw, err)
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*id = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return fmt.Errorf("invalid plant id %s: %w", raw, err)
		}
		n = int64(f)
	}
	*id = ID(n)
	return nil
}

// Encode frames a command into its wire form, stamping a fresh request id.
func Encode(cmd Command) ([]byte, string, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal %s: %w", cmd.Type(), err)
	}
	requestID := uuid.NewString()
	frame, err := json.Marshal(Envelope{
		Type:      cmd.Type(),
		RequestID: requestID,
		Data:      data,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal envelope for %s: %w", cmd.Type(), err)
	}
	return frame, requestID, nil
}

// Decode parses a wire frame into its event type.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	return DecodeData(env.Type, env.Data)
}

// DecodeData parses the payload of a message whose type is already known.
func DecodeData(msgType string, data json.RawMessage) (Event, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	var (
		ev  Event
		err error
	)
	switch msgType {
	case TypeIrrigationDecision:
		var e IrrigationDecision
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeIrrigationStarted:
		var e IrrigationStarted
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeOpenValveSuccess, TypeOpenValveFail, TypeCloseValveSuccess, TypeCloseValveFail:
		e := ValveResult{Kind: msgType}
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeIrrigateSuccess, TypeIrrigateFail, TypeIrrigateSkipped:
		e := IrrigateResult{Kind: msgType}
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeStopIrrigationSuccess, TypeStopIrrigationFail:
		e := StopResult{Kind: msgType}
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeValveBlocked:
		var e ValveBlocked
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeRestartValveSuccess, TypeRestartValveFail:
		e := RestartResult{Kind: msgType}
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeGardenIrrigationStarted, TypeGardenIrrigationStopped:
		e := GardenIrrigation{Kind: msgType}
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msgType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", msgType, err)
	}
	return ev, nil
}

// EventTypes lists every inbound wire type, in declaration order.
func EventTypes() []string {
	return []string{
		TypeIrrigationDecision,
		TypeIrrigationStarted,
		TypeOpenValveSuccess,
		TypeOpenValveFail,
		TypeCloseValveSuccess,
		TypeCloseValveFail,
		TypeIrrigateSuccess,
		TypeIrrigateFail,
		TypeIrrigateSkipped,
		TypeStopIrrigationSuccess,
		TypeStopIrrigationFail,
		TypeValveBlocked,
		TypeRestartValveSuccess,
		TypeRestartValveFail,
		TypeGardenIrrigationStarted,
		TypeGardenIrrigationStopped,
	}
}
