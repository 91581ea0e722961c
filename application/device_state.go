package application

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// EventNumberMoving is reported by the gateway while a device is in motion.
const EventNumberMoving = 7

const (
	ValueUp   = "UP"
	ValueDown = "DOWN"
	ValueStop = "STOP"
	ValueOn   = "ON"
	ValueOff  = "OFF"
)

var (
	mainPositionRegexp       = regexp.MustCompile(`^(\d+)%$`)
	additionalPositionRegexp = regexp.MustCompile(`^(\d+)\$$`)
)

type RawDeviceEvent struct {
	DeviceID    string `json:"deviceId"`
	Value       string `json:"value"`
	EventNumber int    `json:"eventNumber"`
}

type valueKind int

const (
	valueKindText valueKind = iota
	valueKindNumeric
)

// parsedValue is the value string split into <main>[:<additional>].
type parsedValue struct {
	kind valueKind
	text string
	main int

	additional    int
	hasAdditional bool
}

func parseValue(value string) parsedValue {
	main, additional, _ := strings.Cut(value, ":")

	p := parsedValue{kind: valueKindText, text: main}
	if n, ok := matchNumber(mainPositionRegexp, main); ok {
		p = parsedValue{kind: valueKindNumeric, main: n}
	}

	if n, ok := matchNumber(additionalPositionRegexp, additional); ok {
		p.additional = n
		p.hasAdditional = true
	}

	return p
}

func matchNumber(re *regexp.Regexp, s string) (int, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// DeviceState is the decoded state of a single device. It never changes after
// construction.
type DeviceState struct {
	DeviceID    string
	EventNumber int
	Value       string

	coverPosition    int
	hasCoverPosition bool
	tiltPosition     int
	hasTiltPosition  bool
	state            string
	hasState         bool
}

func NewDeviceState(event RawDeviceEvent) *DeviceState {
	s := &DeviceState{
		DeviceID:    event.DeviceID,
		EventNumber: event.EventNumber,
		Value:       event.Value,
	}

	p := parseValue(event.Value)
	moving := s.IsMoving()

	switch {
	case p.kind == valueKindText && p.text == ValueUp:
		s.coverPosition, s.hasCoverPosition = 100, true
	case p.kind == valueKindText && p.text == ValueDown:
		s.coverPosition, s.hasCoverPosition = 0, true
	case p.kind == valueKindText:
		// STOP, ON, OFF and unknown tokens carry no cover position
	case moving && p.hasAdditional:
		// while tilting the main field reports tilt progress
		s.coverPosition, s.hasCoverPosition = p.additional, true
	default:
		s.coverPosition, s.hasCoverPosition = p.main, true
	}

	switch {
	case p.kind == valueKindNumeric && moving:
		s.tiltPosition, s.hasTiltPosition = p.main, true
	default:
		s.tiltPosition, s.hasTiltPosition = p.additional, p.hasAdditional
	}

	if p.kind == valueKindText {
		s.state, s.hasState = p.text, true
	}

	return s
}

func (s *DeviceState) IsMoving() bool {
	return s.EventNumber == EventNumberMoving
}

func (s *DeviceState) CoverPosition() (int, bool) {
	return s.coverPosition, s.hasCoverPosition
}

func (s *DeviceState) TiltPosition() (int, bool) {
	return s.tiltPosition, s.hasTiltPosition
}

// State returns the textual status (ON, OFF, UP, DOWN, STOP, ...) when the
// main segment is not a percentage.
func (s *DeviceState) State() (string, bool) {
	return s.state, s.hasState
}

func (s *DeviceState) IsOn() bool {
	return s.hasState && s.state == ValueOn
}

// IsClosed reports whether the cover is fully closed. The second result is
// false when the position is unknown.
func (s *DeviceState) IsClosed() (bool, bool) {
	if !s.hasCoverPosition {
		return false, false
	}
	return s.coverPosition == 0, true
}

type deviceStateJSON struct {
	DeviceID      string  `json:"device_id"`
	EventNumber   int     `json:"event_number"`
	Value         string  `json:"value"`
	Moving        bool    `json:"moving"`
	CoverPosition *int    `json:"cover_position"`
	TiltPosition  *int    `json:"tilt_position"`
	State         *string `json:"state"`
	IsOn          bool    `json:"is_on"`
	IsClosed      *bool   `json:"is_closed"`
}

func (s *DeviceState) MarshalJSON() ([]byte, error) {
	v := deviceStateJSON{
		DeviceID:    s.DeviceID,
		EventNumber: s.EventNumber,
		Value:       s.Value,
		Moving:      s.IsMoving(),
		IsOn:        s.IsOn(),
	}
	if pos, ok := s.CoverPosition(); ok {
		v.CoverPosition = &pos
	}
	if tilt, ok := s.TiltPosition(); ok {
		v.TiltPosition = &tilt
	}
	if state, ok := s.State(); ok {
		v.State = &state
	}
	if closed, ok := s.IsClosed(); ok {
		v.IsClosed = &closed
	}
	return json.Marshal(v)
}
