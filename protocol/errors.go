package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned by encoders when a field does not satisfy
// its constraints (address out of range, payload too long, wrong sector
// size). It is always raised before any frame is produced.
var ErrInvalidArgument = errors.New("invalid argument")

// MalformedResponseError indicates that the command code echoed by the chip
// does not match the request that produced the response. This means the
// transport lost synchronization; the session should be closed and reopened.
type MalformedResponseError struct {
	Want CommandCode
	Got  CommandCode

	// Reason is set when the envelope matched but the body is structurally
	// invalid.
	Reason string
}

func (e *MalformedResponseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed %v response: %s", e.Want, e.Reason)
	}
	return fmt.Sprintf("response code mismatch: sent %v, received %v", e.Want, e.Got)
}

// ChipError indicates that the chip explicitly reported a failure for a
// command. The raw completion code is preserved for diagnostics. These
// errors are recoverable; the caller decides whether to retry.
type ChipError struct {
	Cmd  CommandCode
	Code byte
}

func (e *ChipError) Error() string {
	return fmt.Sprintf("%v failed with chip code 0x%02X", e.Cmd, e.Code)
}

// Denied reports whether the chip refused the command due to flash
// protection (password required or permanently locked).
func (e *ChipError) Denied() bool {
	return e.Code == StatusNotAllowed || e.Code == StatusNotSupported
}

// Busy reports whether the chip refused the command because the I2C engine
// was still occupied with a previous transfer.
func (e *ChipError) Busy() bool {
	return e.Code == StatusBusy
}
