package mcp2221

import (
	"fmt"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

// SRAM manages the volatile runtime configuration: clock output, ADC/DAC
// references, interrupt detection and the designation of the four GP pins.
// Changes take effect immediately and are lost on reset; use Flash to make
// them persistent.
type SRAM struct {
	*Device
}

// Settings returns the current volatile configuration snapshot.
func (mod *SRAM) Settings() (protocol.SRAMSettings, error) {
	rsp, err := mod.exchange(protocol.EncodeSRAMGet())
	if err != nil {
		return protocol.SRAMSettings{}, fmt.Errorf("exchange(): %w", err)
	}
	return protocol.DecodeSRAMGet(&rsp)
}

// Apply carries out the selected configuration changes. Groups without
// their alter flag keep their current state.
func (mod *SRAM) Apply(req protocol.SRAMSetRequest) error {
	enc, err := protocol.EncodeSRAMSet(req)
	if err != nil {
		return err
	}
	rsp, err := mod.exchange(enc)
	if err != nil {
		return fmt.Errorf("exchange(): %w", err)
	}
	return protocol.DecodeSRAMSet(&rsp)
}

// ConfigurePin changes the designation of a single pin. The chip only
// accepts all four pin bytes at once, so the other three are read back
// first and resubmitted unchanged.
func (mod *SRAM) ConfigurePin(pin int, cfg protocol.PinConfig) error {
	if pin < 0 || pin >= protocol.PinCount {
		return fmt.Errorf("%w: pin %d", protocol.ErrInvalidArgument, pin)
	}
	cur, err := mod.Settings()
	if err != nil {
		return err
	}
	cur.Pins[pin] = cfg
	return mod.Apply(protocol.SRAMSetRequest{SetPins: true, Pins: cur.Pins})
}
