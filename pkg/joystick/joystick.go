package joystick

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// Button and pad mappings for the DualShock 4 pad we drive the arm with:
//
// Buttons
//
//    Cross     = 0
//    Circle    = 1
//    Triangle  = 2
//    Square    = 3
//    L1        = 4
//    R1        = 5
//    L2        = 6 (also an axis)
//    R2        = 7 (also an axis)
//    Share     = 8
//    Options   = 9
//    PS        = 10
//    L stick   = 11
//    R stick   = 12
//
// Axes
//
//    D-pad   u/d = 7 (up = -32767; down = +32767)
//            l/r = 6 (left = -32767; right = +32767)
//    L stick u/d = 1 (up = -32767; down = +32767)
//            l/r = 0 (left = -32767; right = +32767)
//    R stick u/d = 4 (up = -32767; down = +32767)
//            l/r = 3 (left = -32767; right = +32767)
//    L2          = 2 (unpressed = -32767; fully-pressed = 32767)
//    R2          = 5 (unpressed = -32767; fully-pressed = 32767)

type EventType uint8

const (
	EventTypeButton = 1
	EventTypeAxis   = 2
)

const (
	ButtonCross    = 0
	ButtonCircle   = 1
	ButtonTriangle = 2
	ButtonSquare   = 3
	ButtonL1       = 4
	ButtonR1       = 5
	ButtonL2       = 6
	ButtonR2       = 7
	ButtonShare    = 8
	ButtonOptions  = 9
	ButtonPS       = 10
	ButtonLStick   = 11
	ButtonRStick   = 12

	AxisLStickX = 0
	AxisLStickY = 1
	AxisRStickX = 3
	AxisRStickY = 4
	AxisDPadX   = 6
	AxisDPadY   = 7
)

// axisScale converts the kernel's int16 axis range to -1..1.
const axisScale = 32767.0

func (e EventType) String() string {
	switch e {
	case EventTypeAxis:
		return "axis"
	case EventTypeButton:
		return "button"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

type Joystick struct {
	device *os.File

	deviceEpoch    uint32
	wallclockEpoch time.Time
}

type rawEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

type Event struct {
	Time   time.Time
	Value  int16
	Type   EventType
	Number uint8
}

func (e *Event) String() string {
	return fmt.Sprintf("%v(%v)=%v", e.Type, e.Number, e.Value)
}

func NewJoystick(device string) (*Joystick, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, err
	}
	return &Joystick{
		device: f,
	}, nil
}

func (j *Joystick) ReadEvent() (*Event, error) {
	var rawEvent rawEvent
	err := binary.Read(j.device, binary.LittleEndian, &rawEvent)
	if err != nil {
		return nil, err
	}

	if j.deviceEpoch == 0 {
		j.deviceEpoch = rawEvent.Time
		j.wallclockEpoch = time.Now()
	}

	return &Event{
		Time:   j.wallclockEpoch.Add(time.Duration(rawEvent.Time-j.deviceEpoch) * time.Millisecond),
		Value:  rawEvent.Value,
		Type:   EventType(rawEvent.Type & 0x7f),
		Number: rawEvent.Number,
	}, nil
}

func (j *Joystick) Close() error {
	return j.device.Close()
}

// Sample is a snapshot of the whole pad at one point in time: button states
// as 0/1 and axis positions normalised to -1..1.  Samples are value types;
// holding one is safe but it never updates.
type Sample struct {
	Time    time.Time
	Buttons []int32
	Axes    []float64
}

// State accumulates per-control events into the pad's current state.  The
// kernel only reports changes (plus a burst of synthetic init events on
// open), so we fold events here and hand out complete Samples.
type State struct {
	buttons []int32
	axes    []float64
}

func (s *State) Apply(e *Event) {
	switch e.Type {
	case EventTypeButton:
		n := int(e.Number)
		for len(s.buttons) <= n {
			s.buttons = append(s.buttons, 0)
		}
		if e.Value != 0 {
			s.buttons[n] = 1
		} else {
			s.buttons[n] = 0
		}
	case EventTypeAxis:
		n := int(e.Number)
		for len(s.axes) <= n {
			s.axes = append(s.axes, 0)
		}
		s.axes[n] = float64(e.Value) / axisScale
	}
}

func (s *State) Snapshot(t time.Time) Sample {
	sample := Sample{
		Time:    t,
		Buttons: make([]int32, len(s.buttons)),
		Axes:    make([]float64, len(s.axes)),
	}
	copy(sample.Buttons, s.buttons)
	copy(sample.Axes, s.axes)
	return sample
}
