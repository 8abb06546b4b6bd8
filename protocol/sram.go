package protocol

import (
	"encoding/binary"
	"fmt"
)

// PinFunction selects what a general purpose pin is wired to. 0 is plain
// GPIO on every pin; the meaning of the other values depends on the pin
// (SSPND/CLKR/USBCFG/LED on function 1, ADC on 2, DAC/LED on 3, interrupt
// detection on 4).
type PinFunction byte

const (
	FuncGPIO      PinFunction = 0x00
	FuncDedicated PinFunction = 0x01
	FuncAlt0      PinFunction = 0x02
	FuncAlt1      PinFunction = 0x03
	FuncAlt2      PinFunction = 0x04

	// Aliases for the alternate functions that matter to this package.
	FuncADC       = FuncAlt0
	FuncDAC       = FuncAlt1
	FuncInterrupt = FuncAlt2
)

// pinFuncMax is the highest function value any pin accepts.
const pinFuncMax = FuncAlt2

// PinConfig is the designation of one pin: function, direction and, for
// outputs, the driven level. It is used both for the volatile SRAM settings
// and for the power-up configuration persisted in flash.
type PinConfig struct {
	Function PinFunction
	Dir      Direction
	Level    byte
}

// encode packs a pin configuration into the single byte layout shared by
// the SRAM set command and the GP settings flash sector: level at bit 4,
// direction at bit 3, function at bits 0..2.
func (p PinConfig) encode() (byte, error) {
	if p.Function > pinFuncMax {
		return 0, fmt.Errorf("%w: pin function 0x%02X", ErrInvalidArgument, byte(p.Function))
	}
	if p.Dir != DirOutput && p.Dir != DirInput {
		return 0, fmt.Errorf("%w: pin direction 0x%02X", ErrInvalidArgument, byte(p.Dir))
	}
	b := byte(p.Function) | byte(p.Dir)<<3
	if p.Level != 0 {
		b |= 1 << 4
	}
	return b, nil
}

// decodePinConfig is the inverse of PinConfig.encode.
func decodePinConfig(b byte) PinConfig {
	return PinConfig{
		Function: PinFunction(b & 0x07),
		Dir:      Direction(b >> 3 & 0x01),
		Level:    b >> 4 & 0x01,
	}
}

// EncodePinConfigs packs four pin configurations into the GP settings flash
// sector payload.
func EncodePinConfigs(pins [PinCount]PinConfig) ([]byte, error) {
	buf := make([]byte, GPSettingsSize)
	for i, p := range pins {
		b, err := p.encode()
		if err != nil {
			return nil, fmt.Errorf("pin %d: %w", i, err)
		}
		buf[i] = b
	}
	return buf, nil
}

// DecodePinConfigs parses a GP settings sector payload.
func DecodePinConfigs(data []byte) ([PinCount]PinConfig, error) {
	var pins [PinCount]PinConfig
	if len(data) < GPSettingsSize {
		return pins, fmt.Errorf("%w: GP settings payload is %d bytes", ErrInvalidArgument, len(data))
	}
	for i := range pins {
		pins[i] = decodePinConfig(data[i])
	}
	return pins, nil
}

// VRef selects the reference voltage of the ADC and DAC modules: bit 0
// chooses the internal reference over Vdd, bits 1..2 its magnitude.
type VRef byte

const (
	VRefVdd   VRef = 0x00
	VRefOff   VRef = 0x01
	VRef1V024 VRef = 0x03
	VRef2V048 VRef = 0x05
	VRef4V096 VRef = 0x07
)

func validVRef(v VRef) bool {
	return v == VRefVdd || (v&0x01 == 0x01 && v < 0x08)
}

// IOCEdge selects which signal edges trigger the interrupt detector.
type IOCEdge byte

const (
	EdgeNone    IOCEdge = 0x00
	EdgeRising  IOCEdge = 0x01
	EdgeFalling IOCEdge = 0x02
	EdgeBoth    IOCEdge = 0x03
)

// ChipSecurity is the flash protection option of the chip.
type ChipSecurity byte

const (
	SecurityOpen     ChipSecurity = 0x00
	SecurityPassword ChipSecurity = 0x01
	SecurityLocked   ChipSecurity = 0x02
)

// ChipSettings is the decoded chip settings block, common to the SRAM
// snapshot and the chip settings flash sector.
type ChipSettings struct {
	CDCSerialEnumeration bool
	Security             ChipSecurity

	ClockDivider  byte
	ClockDuty     byte
	DACVRef       VRef
	DACPowerUp    byte
	InterruptEdge IOCEdge
	ADCVRef       VRef

	USBVID         uint16
	USBPID         uint16
	USBPowerAttr   byte
	USBRequestedMA byte
}

// parseChipSettings decodes the settings block starting at data[0] (byte 4
// of a flash read or SRAM get response).
func parseChipSettings(data []byte) ChipSettings {
	return ChipSettings{
		CDCSerialEnumeration: data[0]>>7&0x01 == 1,
		Security:             ChipSecurity(data[0] & 0x03),
		ClockDivider:         data[1] & 0x07,
		ClockDuty:            data[1] >> 3 & 0x03,
		DACVRef:              VRef(data[2] >> 5 & 0x07),
		DACPowerUp:           data[2] & 0x1F,
		InterruptEdge:        IOCEdge(data[3] >> 5 & 0x03),
		ADCVRef:              VRef(data[3] >> 2 & 0x07),
		USBVID:               binary.LittleEndian.Uint16(data[4:6]),
		USBPID:               binary.LittleEndian.Uint16(data[6:8]),
		USBPowerAttr:         data[8],
		USBRequestedMA:       data[9],
	}
}

// DecodeChipSettingsSector parses the chip settings flash sector payload as
// returned by DecodeFlashRead.
func DecodeChipSettingsSector(data []byte) (ChipSettings, error) {
	if len(data) < ChipSettingsSize {
		return ChipSettings{}, fmt.Errorf("%w: chip settings payload is %d bytes", ErrInvalidArgument, len(data))
	}
	return parseChipSettings(data), nil
}

// SRAMSettings is the decoded volatile configuration snapshot.
type SRAMSettings struct {
	Chip ChipSettings
	Pins [PinCount]PinConfig
}

// SRAMSetRequest selects the volatile configuration changes carried by one
// set-SRAM-settings command. Every group has an explicit alter flag; groups
// left unset keep their current chip state (the chip honors per-field alter
// bits, so an all-zero request is a no-op).
type SRAMSetRequest struct {
	SetClock     bool
	ClockDivider byte
	ClockDuty    byte

	SetDACVRef bool
	DACVRef    VRef

	SetDACValue bool
	DACValue    byte // 5 bit

	SetADCVRef bool
	ADCVRef    VRef

	SetInterrupt   bool
	InterruptEdge  IOCEdge
	ClearInterrupt bool

	// SetPins rewrites the designation of all four pins at once; the chip
	// has no per-pin alter bit, so callers must supply the full set
	// (read-modify-write against the current snapshot).
	SetPins bool
	Pins    [PinCount]PinConfig
}

// EncodeSRAMSet builds the set-SRAM-settings request. Layout per the
// datasheet: clock at byte 2, DAC reference at 3, DAC value at 4, ADC
// reference at 5, interrupt configuration at 6, the alter-GP flag at 7 and
// the four pin bytes at 8..11. Bit 7 of each settings byte is the alter
// flag.
func EncodeSRAMSet(req SRAMSetRequest) (Report, error) {
	r := newReport(CmdSetSRAMSettings)

	if req.SetClock {
		if req.ClockDivider > 0x07 || req.ClockDuty > 0x03 {
			return Report{}, fmt.Errorf("%w: clock divider 0x%02X duty 0x%02X",
				ErrInvalidArgument, req.ClockDivider, req.ClockDuty)
		}
		r[2] = 1<<7 | req.ClockDuty<<3 | req.ClockDivider
	}
	if req.SetDACVRef {
		if !validVRef(req.DACVRef) {
			return Report{}, fmt.Errorf("%w: DAC reference 0x%02X", ErrInvalidArgument, byte(req.DACVRef))
		}
		r[3] = 1<<7 | byte(req.DACVRef)
	}
	if req.SetDACValue {
		if req.DACValue > 0x1F {
			return Report{}, fmt.Errorf("%w: DAC value %d exceeds 5 bits", ErrInvalidArgument, req.DACValue)
		}
		r[4] = 1<<7 | req.DACValue
	}
	if req.SetADCVRef {
		if !validVRef(req.ADCVRef) {
			return Report{}, fmt.Errorf("%w: ADC reference 0x%02X", ErrInvalidArgument, byte(req.ADCVRef))
		}
		r[5] = 1<<7 | byte(req.ADCVRef)
	}
	if req.SetInterrupt || req.ClearInterrupt {
		r[6] = 1 << 7
		if req.ClearInterrupt {
			r[6] |= 1
		}
		if req.SetInterrupt {
			if req.InterruptEdge > EdgeBoth {
				return Report{}, fmt.Errorf("%w: interrupt edge 0x%02X", ErrInvalidArgument, byte(req.InterruptEdge))
			}
			// alter bits for the positive and negative edge enables
			r[6] |= 1<<4 | 1<<2
			if req.InterruptEdge&EdgeRising != 0 {
				r[6] |= 1 << 3
			}
			if req.InterruptEdge&EdgeFalling != 0 {
				r[6] |= 1 << 1
			}
		}
	}
	if req.SetPins {
		r[7] = 0xFF
		for i, p := range req.Pins {
			b, err := p.encode()
			if err != nil {
				return Report{}, fmt.Errorf("pin %d: %w", i, err)
			}
			r[8+i] = b
		}
	}
	return r, nil
}

// EncodeSRAMGet builds the get-SRAM-settings request.
func EncodeSRAMGet() Report {
	return newReport(CmdGetSRAMSettings)
}

// DecodeSRAMSet validates the response of a set-SRAM-settings request.
func DecodeSRAMSet(rsp *Report) error {
	return checkResponse(CmdSetSRAMSettings, rsp)
}

// DecodeSRAMGet parses the volatile settings snapshot. Byte 2 carries the
// length of the chip settings block starting at byte 4, byte 3 the length
// of the pin block that follows it.
func DecodeSRAMGet(rsp *Report) (SRAMSettings, error) {
	var s SRAMSettings
	if err := checkResponse(CmdGetSRAMSettings, rsp); err != nil {
		return s, err
	}
	chipLen := int(rsp[2])
	pinOff := 4 + chipLen
	if chipLen < ChipSettingsSize || pinOff+PinCount > ReportSize {
		return s, &MalformedResponseError{
			Want: CmdGetSRAMSettings, Got: rsp.Command(),
			Reason: fmt.Sprintf("settings block length %d", chipLen),
		}
	}
	s.Chip = parseChipSettings(rsp[4 : 4+chipLen])
	for i := 0; i < PinCount; i++ {
		s.Pins[i] = decodePinConfig(rsp[pinOff+i])
	}
	return s, nil
}
