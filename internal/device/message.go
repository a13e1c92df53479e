package device

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ResetFrame is the literal frame the controller sends before it reboots.
const ResetFrame = "reset"

// ErrUnknownShape is returned for JSON frames that match none of the known layouts.
var ErrUnknownShape = errors.New("unrecognised frame shape")

// Kind tags the variant carried by a Message.
type Kind int

const (
	KindUnknown Kind = iota
	KindReset
	KindFieldSync
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindReset:
		return "reset"
	case KindFieldSync:
		return "fields"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Message is one decoded inbound frame. Only the members matching Kind are set.
type Message struct {
	Kind   Kind
	Fields map[string]string
	// Rejected lists field-map keys whose values were not scalars.
	Rejected []string
	Status   StatusSnapshot
}

// BatteryStatus mirrors one entry of the controller's batteryStatus list.
type BatteryStatus struct {
	Index      int     `json:"index"`
	Voltage    float64 `json:"voltage"`
	Current    float64 `json:"current"`
	AmpereHour float64 `json:"ampereHour"`
	LedStatus  string  `json:"ledStatus"`
}

// On reports whether the controller's status LED shows the battery as connected.
func (b BatteryStatus) On() bool {
	return strings.EqualFold(strings.TrimSpace(b.LedStatus), "green")
}

// ControlSwitch mirrors one entry of the controller's controlSwitches list.
type ControlSwitch struct {
	Index int `json:"index"`
}

// StatusSnapshot is the structured telemetry payload.
type StatusSnapshot struct {
	Batteries []BatteryStatus `json:"batteryStatus"`
	Switches  []ControlSwitch `json:"controlSwitches"`
}

// Decode turns a raw inbound frame into a Message.
//
// Objects carrying batteryStatus or controlSwitches decode as KindStatus. Any
// other object decodes as KindFieldSync with scalar values rendered as
// strings; keys holding objects or arrays are listed in Rejected. A field map
// where no key is usable is an error, as is everything else.
func Decode(raw string) (Message, error) {
	if raw == ResetFrame {
		return Message{Kind: KindReset}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if obj == nil {
		return Message{}, fmt.Errorf("decode frame: %w", ErrUnknownShape)
	}

	_, hasBatteries := obj["batteryStatus"]
	_, hasSwitches := obj["controlSwitches"]
	if hasBatteries || hasSwitches {
		var status StatusSnapshot
		if err := json.Unmarshal([]byte(raw), &status); err != nil {
			return Message{}, fmt.Errorf("decode status: %w", err)
		}
		return Message{Kind: KindStatus, Status: status}, nil
	}

	fields := make(map[string]string, len(obj))
	var rejected []string
	for key, value := range obj {
		text, err := scalarString(value)
		if err != nil {
			rejected = append(rejected, key)
			continue
		}
		fields[key] = text
	}
	if len(fields) == 0 && len(rejected) > 0 {
		return Message{}, fmt.Errorf("decode fields %s: %w", strings.Join(rejected, ","), ErrUnknownShape)
	}
	slices.Sort(rejected)
	return Message{Kind: KindFieldSync, Fields: fields, Rejected: rejected}, nil
}

func scalarString(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", ErrUnknownShape
	}
}
