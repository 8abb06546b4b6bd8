package protocol

import "fmt"

// PinCount is the number of general purpose pins on the chip.
const PinCount = 4

// Direction of a GPIO pin.
type Direction byte

const (
	DirOutput Direction = 0x00
	DirInput  Direction = 0x01
	// DirNotAvailable is reported for pins assigned a non-GPIO function.
	DirNotAvailable Direction = 0xEF
)

func (d Direction) String() string {
	switch d {
	case DirOutput:
		return "output"
	case DirInput:
		return "input"
	case DirNotAvailable:
		return "n/a"
	}
	return fmt.Sprintf("direction(0x%02X)", byte(d))
}

// PinLevelNA is reported instead of a logic level for pins assigned a
// non-GPIO function.
const PinLevelNA byte = 0xEE

// PinState is the immediate state of one pin as reported by the get-values
// command. For pins running an alternate function both fields carry their
// "not available" sentinel rather than stale data.
type PinState struct {
	Level byte
	Dir   Direction
}

// Available reports whether the pin is in plain GPIO operation.
func (p PinState) Available() bool {
	return p.Level != PinLevelNA && p.Dir != DirNotAvailable
}

// High reports the logic level of an available pin.
func (p PinState) High() bool { return p.Available() && p.Level != 0 }

// PinUpdate describes the change requested for one pin in a set-output
// command. Fields guarded by a false flag leave the pin untouched, so a
// single report can address any subset of the four pins.
type PinUpdate struct {
	SetLevel bool
	Level    byte

	SetDir bool
	Dir    Direction
}

// EncodeGPIOSet builds the immediate (volatile) pin update request. Each pin
// occupies four bytes starting at byte 2: alter-level flag, level, alter-
// direction flag, direction.
func EncodeGPIOSet(updates [PinCount]PinUpdate) (Report, error) {
	r := newReport(CmdSetGPIOOutput)
	for pin, u := range updates {
		if u.SetDir && u.Dir != DirOutput && u.Dir != DirInput {
			return Report{}, fmt.Errorf("%w: pin %d direction 0x%02X", ErrInvalidArgument, pin, byte(u.Dir))
		}
		base := 2 + 4*pin
		if u.SetLevel {
			r[base] = 0xFF
			if u.Level != 0 {
				r[base+1] = 1
			}
		}
		if u.SetDir {
			r[base+2] = 0xFF
			r[base+3] = byte(u.Dir)
		}
	}
	return r, nil
}

// EncodeGPIOGet builds the immediate pin value request.
func EncodeGPIOGet() Report {
	return newReport(CmdGetGPIOValues)
}

// DecodeGPIOSet validates the response of a set-output request.
func DecodeGPIOSet(rsp *Report) error {
	return checkResponse(CmdSetGPIOOutput, rsp)
}

// DecodeGPIOGet parses the immediate state of all four pins. Each pin
// occupies two bytes starting at byte 2: level, then direction.
func DecodeGPIOGet(rsp *Report) ([PinCount]PinState, error) {
	var states [PinCount]PinState
	if err := checkResponse(CmdGetGPIOValues, rsp); err != nil {
		return states, err
	}
	for pin := 0; pin < PinCount; pin++ {
		states[pin] = PinState{
			Level: rsp[2+2*pin],
			Dir:   Direction(rsp[3+2*pin]),
		}
	}
	return states, nil
}
