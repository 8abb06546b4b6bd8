package protocol

import (
	"encoding/binary"
	"fmt"
)

// ClkHz is the internal clock frequency the I2C divider is derived from.
const ClkHz = 12000000

// Valid I2C bus clock range. The divider is a single byte computed as
// ClkHz/speed - 3, which bounds the configurable range.
const (
	I2CSpeedMin = ClkHz / 258
	I2CSpeedMax = ClkHz / 3
)

// Internal I2C engine state codes as reported in byte 8 of the status
// response. The engine runs the bus protocol on its own; these codes are the
// only visibility the host has into it.
const (
	engineIdle byte = 0x00

	engineStartTimeout    byte = 0x12
	engineRepStartTimeout byte = 0x17
	engineAddrSend        byte = 0x21
	engineAddrTimeout     byte = 0x23
	engineAddrNACK        byte = 0x25
	engineDataNACK        byte = 0x27
	engineBusCollision    byte = 0x2D
	enginePartialData     byte = 0x41
	engineReadMore        byte = 0x43
	engineWriteTimeout    byte = 0x44
	engineWritingNoStop   byte = 0x45
	engineReadTimeout     byte = 0x52
	engineReadPartial     byte = 0x54
	engineReadComplete    byte = 0x55
	engineStopTimeout     byte = 0x62
)

// EngineFault classifies the failure reported by the I2C engine, if any.
// Callers typically react differently to each kind (retry, abort, rescan),
// so they are kept distinct rather than folded into one error code.
type EngineFault int

const (
	FaultNone EngineFault = iota
	FaultAddressNack
	FaultDataNack
	FaultBusCollision
	FaultBusTimeout
)

func (f EngineFault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultAddressNack:
		return "address NACK"
	case FaultDataNack:
		return "data NACK"
	case FaultBusCollision:
		return "bus collision"
	case FaultBusTimeout:
		return "bus timeout"
	}
	return fmt.Sprintf("fault(%d)", int(f))
}

// EngineStatus is a decoded snapshot of the chip's internal I2C engine. It
// is the sole source of truth for whether a transfer is still running, has
// completed, or has failed.
type EngineStatus struct {
	// State is the raw engine state code (byte 8 of the status response).
	State byte

	// Requested and Transferred are the byte counters of the transfer the
	// engine is executing.
	Requested   uint16
	Transferred uint16

	// BufferCounter is the fill level of the internal 60-byte data buffer.
	BufferCounter byte

	// ClockDivider is the currently active bus clock divider.
	ClockDivider byte

	// Address is the slave address of the current transfer, already shifted.
	Address uint16

	// SCL and SDA report the sampled logic level of the bus lines.
	SCL bool
	SDA bool

	// ReadPending is nonzero when the engine holds read data the host has
	// not collected yet.
	ReadPending byte
}

// Idle reports whether the engine has no transfer in progress.
func (s EngineStatus) Idle() bool { return s.State == engineIdle }

// Busy reports whether the engine is still executing a transfer. A faulted
// engine is not busy; it is stuck until cancelled.
func (s EngineStatus) Busy() bool {
	return s.State != engineIdle && s.Fault() == FaultNone
}

// HoldingNoStop reports whether the engine finished a no-stop write and is
// keeping the bus claimed for a follow-up transfer.
func (s EngineStatus) HoldingNoStop() bool { return s.State == engineWritingNoStop }

// ReadDone reports whether the engine has clocked in the final chunk of a
// read transfer.
func (s EngineStatus) ReadDone() bool {
	return s.State == engineReadComplete || s.State == engineIdle
}

// Fault classifies the engine state into one of the distinct error kinds,
// or FaultNone while the engine is idle or working.
func (s EngineStatus) Fault() EngineFault {
	switch s.State {
	case engineAddrNACK:
		return FaultAddressNack
	case engineDataNACK:
		return FaultDataNack
	case engineBusCollision:
		return FaultBusCollision
	case engineStartTimeout, engineRepStartTimeout, engineAddrTimeout,
		engineWriteTimeout, engineReadTimeout, engineStopTimeout:
		return FaultBusTimeout
	}
	return FaultNone
}

// Results of the cancel and set-speed options of a set-parameters request,
// reported in bytes 2 and 3 of the status response.
const (
	CancelNoOp   byte = 0x00
	CancelMarked byte = 0x10
	CancelIdle   byte = 0x11

	SpeedNoOp     byte = 0x00
	SpeedAccepted byte = 0x20
	SpeedRejected byte = 0x21
)

// DeviceStatus is the decoded response of a status or set-parameters
// command. It embeds the engine snapshot together with revision bytes and
// the latest ADC conversions.
type DeviceStatus struct {
	Engine EngineStatus

	// CancelResult and SpeedResult echo the outcome of the respective
	// set-parameters options (CancelNoOp/SpeedNoOp when not requested).
	CancelResult byte
	SpeedResult  byte

	// Interrupt is set when the edge detector has triggered since the flag
	// was last cleared.
	Interrupt bool

	HardwareRev [2]byte
	FirmwareRev [2]byte

	// ADC holds the latest conversion of the three ADC channels.
	ADC [3]uint16
}

// HardwareRevision returns the hardware revision as a printable string.
func (s DeviceStatus) HardwareRevision() string {
	return string([]byte{s.HardwareRev[0], s.HardwareRev[1]})
}

// FirmwareRevision returns the firmware revision as a printable string.
func (s DeviceStatus) FirmwareRevision() string {
	return string([]byte{s.FirmwareRev[0], s.FirmwareRev[1]})
}

// I2CSpeedHz converts the active clock divider back into a bus frequency.
func (s DeviceStatus) I2CSpeedHz() uint32 {
	return uint32(ClkHz / (int(s.Engine.ClockDivider) + 3))
}

// SetParametersRequest selects the recognized chip parameter changes. The
// zero value requests nothing and turns the command into a plain status
// poll.
type SetParametersRequest struct {
	// CancelTransfer aborts an in-progress I2C transfer, returning the bus
	// to idle.
	CancelTransfer bool

	// I2CSpeedHz reconfigures the bus clock when nonzero. Must lie within
	// [I2CSpeedMin, I2CSpeedMax].
	I2CSpeedHz uint32
}

// EncodeStatus builds a plain status request.
func EncodeStatus() Report {
	return newReport(CmdStatus)
}

// EncodeSetParameters builds a status request carrying parameter changes.
func EncodeSetParameters(req SetParametersRequest) (Report, error) {
	r := newReport(CmdStatus)
	if req.CancelTransfer {
		r[2] = 0x10
	}
	if req.I2CSpeedHz != 0 {
		if req.I2CSpeedHz < I2CSpeedMin || req.I2CSpeedHz > I2CSpeedMax {
			return Report{}, fmt.Errorf("%w: i2c speed %d Hz out of range [%d, %d]",
				ErrInvalidArgument, req.I2CSpeedHz, I2CSpeedMin, I2CSpeedMax)
		}
		r[3] = 0x20
		r[4] = byte(ClkHz/req.I2CSpeedHz - 3)
	}
	return r, nil
}

// DecodeStatus parses a status (or set-parameters) response. The decode is
// pure and idempotent: the same raw report always yields the same value.
// This is the single decode path the I2C manager polls in a tight loop, so
// it allocates nothing.
func DecodeStatus(rsp *Report) (DeviceStatus, error) {
	if err := checkResponse(CmdStatus, rsp); err != nil {
		return DeviceStatus{}, err
	}
	return DeviceStatus{
		Engine: EngineStatus{
			State:         rsp[8],
			Requested:     binary.LittleEndian.Uint16(rsp[9:11]),
			Transferred:   binary.LittleEndian.Uint16(rsp[11:13]),
			BufferCounter: rsp[13],
			ClockDivider:  rsp[14],
			Address:       binary.LittleEndian.Uint16(rsp[16:18]),
			SCL:           rsp[22] != 0,
			SDA:           rsp[23] != 0,
			ReadPending:   rsp[25],
		},
		CancelResult: rsp[2],
		SpeedResult:  rsp[3],
		Interrupt:    rsp[24] != 0,
		HardwareRev:  [2]byte{rsp[46], rsp[47]},
		FirmwareRev:  [2]byte{rsp[48], rsp[49]},
		ADC: [3]uint16{
			binary.LittleEndian.Uint16(rsp[50:52]),
			binary.LittleEndian.Uint16(rsp[52:54]),
			binary.LittleEndian.Uint16(rsp[54:56]),
		},
	}, nil
}
