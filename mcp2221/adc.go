package mcp2221

import (
	"fmt"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

// ADC reads the three 10-bit analog inputs. Channel n samples pin GP(n+1);
// the pin must be designated for analog input first with Enable.
type ADC struct {
	*Device
}

// ADCChannels is the number of analog input channels.
const ADCChannels = 3

// Enable designates the pin of the given channel for analog input.
func (mod *ADC) Enable(channel int) error {
	if channel < 0 || channel >= ADCChannels {
		return fmt.Errorf("%w: adc channel %d", protocol.ErrInvalidArgument, channel)
	}
	return mod.SRAM.ConfigurePin(channel+1, protocol.PinConfig{
		Function: protocol.FuncADC,
		Dir:      protocol.DirInput,
	})
}

// SetVRef selects the reference voltage of the converter.
func (mod *ADC) SetVRef(v protocol.VRef) error {
	return mod.SRAM.Apply(protocol.SRAMSetRequest{SetADCVRef: true, ADCVRef: v})
}

// Read returns the latest conversion of all three channels. The chip
// converts continuously; the values are whatever was sampled last.
func (mod *ADC) Read() ([ADCChannels]uint16, error) {
	stat, err := mod.Status.Get()
	if err != nil {
		return [ADCChannels]uint16{}, err
	}
	return stat.ADC, nil
}

// ReadChannel returns the latest conversion of one channel.
func (mod *ADC) ReadChannel(channel int) (uint16, error) {
	if channel < 0 || channel >= ADCChannels {
		return 0, fmt.Errorf("%w: adc channel %d", protocol.ErrInvalidArgument, channel)
	}
	values, err := mod.Read()
	if err != nil {
		return 0, err
	}
	return values[channel], nil
}
