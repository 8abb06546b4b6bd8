package mcp2221

import (
	"fmt"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

// DAC drives the single 5-bit analog output. The converter has one value
// register; it can be routed to GP2, GP3 or both with Enable.
type DAC struct {
	*Device
}

// DACMax is the largest value the 5-bit converter accepts.
const DACMax = 0x1F

// Enable designates a pin for analog output. Only GP2 and GP3 can carry
// the DAC signal.
func (mod *DAC) Enable(pin int) error {
	if pin != 2 && pin != 3 {
		return fmt.Errorf("%w: pin %d has no DAC output", protocol.ErrInvalidArgument, pin)
	}
	return mod.SRAM.ConfigurePin(pin, protocol.PinConfig{
		Function: protocol.FuncDAC,
		Dir:      protocol.DirOutput,
	})
}

// SetVRef selects the reference voltage of the converter.
func (mod *DAC) SetVRef(v protocol.VRef) error {
	return mod.SRAM.Apply(protocol.SRAMSetRequest{SetDACVRef: true, DACVRef: v})
}

// Set updates the output value, 0 through DACMax.
func (mod *DAC) Set(value byte) error {
	return mod.SRAM.Apply(protocol.SRAMSetRequest{SetDACValue: true, DACValue: value})
}
