package protocol

import "fmt"

// ReportSize is the size in bytes of every command and response report.
const ReportSize = 64

// Report is one fixed-size HID report as exchanged with the chip.
type Report [ReportSize]byte

// CommandCode identifies the operation family of a report. The set is fixed
// by the datasheet; an unknown code is a decoding error, never a silent
// fallthrough.
type CommandCode byte

// All recognized command codes. The code is sent as byte 0 of the request
// and echoed as byte 0 of the response.
const (
	CmdStatus            CommandCode = 0x10 // also carries set-parameters requests
	CmdI2CFetchReadData  CommandCode = 0x40
	CmdSetGPIOOutput     CommandCode = 0x50
	CmdGetGPIOValues     CommandCode = 0x51
	CmdSetSRAMSettings   CommandCode = 0x60
	CmdGetSRAMSettings   CommandCode = 0x61
	CmdResetChip         CommandCode = 0x70
	CmdI2CWrite          CommandCode = 0x90
	CmdI2CRead           CommandCode = 0x91
	CmdI2CWriteRepStart  CommandCode = 0x92
	CmdI2CReadRepStart   CommandCode = 0x93
	CmdI2CWriteNoStop    CommandCode = 0x94
	CmdReadFlash         CommandCode = 0xB0
	CmdWriteFlash        CommandCode = 0xB1
	CmdSendFlashPassword CommandCode = 0xB2
)

func (c CommandCode) String() string {
	switch c {
	case CmdStatus:
		return "Status/SetParameters"
	case CmdI2CFetchReadData:
		return "I2CFetchReadData"
	case CmdSetGPIOOutput:
		return "SetGPIOOutput"
	case CmdGetGPIOValues:
		return "GetGPIOValues"
	case CmdSetSRAMSettings:
		return "SetSRAMSettings"
	case CmdGetSRAMSettings:
		return "GetSRAMSettings"
	case CmdResetChip:
		return "ResetChip"
	case CmdI2CWrite:
		return "I2CWrite"
	case CmdI2CRead:
		return "I2CRead"
	case CmdI2CWriteRepStart:
		return "I2CWriteRepeatedStart"
	case CmdI2CReadRepStart:
		return "I2CReadRepeatedStart"
	case CmdI2CWriteNoStop:
		return "I2CWriteNoStop"
	case CmdReadFlash:
		return "ReadFlash"
	case CmdWriteFlash:
		return "WriteFlash"
	case CmdSendFlashPassword:
		return "SendFlashPassword"
	}
	return fmt.Sprintf("Unknown(0x%02X)", byte(c))
}

// Chip completion codes reported in byte 1 of a response.
const (
	StatusOK           byte = 0x00
	StatusBusy         byte = 0x01 // engine busy, command not executed
	StatusNotAllowed   byte = 0x02 // flash protected, password not supplied
	StatusNotSupported byte = 0x03 // flash permanently locked
)

// newReport returns a zero-filled report carrying the given command code.
func newReport(cmd CommandCode) Report {
	var r Report
	r[0] = byte(cmd)
	return r
}

// Command returns the command code of the report.
func (r *Report) Command() CommandCode { return CommandCode(r[0]) }

// checkResponse validates the envelope shared by all responses: the echoed
// command code must match the request that produced the response, and the
// completion code must indicate success.
func checkResponse(cmd CommandCode, rsp *Report) error {
	if rsp.Command() != cmd {
		return &MalformedResponseError{Want: cmd, Got: rsp.Command()}
	}
	if rsp[1] != StatusOK {
		return &ChipError{Cmd: cmd, Code: rsp[1]}
	}
	return nil
}

// CheckResponse validates the response envelope for the given request
// command code. See the package documentation for the envelope layout.
func CheckResponse(cmd CommandCode, rsp *Report) error {
	return checkResponse(cmd, rsp)
}

// EncodeReset builds the chip reset request. The chip does not answer this
// command; it drops off the USB bus and re-enumerates instead.
func EncodeReset() Report {
	r := newReport(CmdResetChip)
	r[1] = 0xAB
	r[2] = 0xCD
	r[3] = 0xEF
	return r
}
