// Package periphbus plugs a mcp2221.Device into the periph.io driver
// ecosystem: the chip's I2C engine becomes an i2c.Bus and its GP pins
// become gpio.PinIO implementations, optionally published through the
// i2creg and gpioreg registries so existing periph device drivers can use
// them by name.
package periphbus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"

	"github.com/BertoldVdb/go-mcp2221a/mcp2221"
	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

// Bus adapts the I2C engine to periph's i2c.Bus. The embedded mutex
// serializes transactions, so one Bus can be shared between drivers.
type Bus struct {
	mu     sync.Mutex
	dev    *mcp2221.Device
	name   string
	closer io.Closer
}

var _ i2c.BusCloser = (*Bus)(nil)

// NewBus wraps a device. closer, when not nil, is closed together with the
// bus; pass the transport session when the bus owns it.
func NewBus(dev *mcp2221.Device, name string, closer io.Closer) *Bus {
	if name == "" {
		name = "mcp2221"
	}
	return &Bus{dev: dev, name: name, closer: closer}
}

func (b *Bus) String() string { return b.name }

// Device returns the wrapped device, for access to the chip modules beyond
// what the periph interfaces expose.
func (b *Bus) Device() *mcp2221.Device { return b.dev }

// Tx runs a write followed by a read as one bus operation, per the i2c.Bus
// contract. Either half may be empty.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > protocol.I2CAddrMax {
		return fmt.Errorf("%s: 10-bit address 0x%03X not supported", b.name, addr)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.I2C.WriteRead(byte(addr), w, r)
}

// SetSpeed reconfigures the bus clock.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.Status.SetI2CSpeed(uint32(f / physic.Hertz))
}

// MaxTxSize implements conn.Limits.
func (b *Bus) MaxTxSize() int { return protocol.I2CTransferMax }

// Close releases the underlying session when the bus owns one.
func (b *Bus) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// RegisterBus publishes an opener in the i2creg registry under the given
// name, so i2creg.Open(name) reaches the chip like any platform bus.
func RegisterBus(name string, busNumber int, open func() (*mcp2221.Device, io.Closer, error)) error {
	return i2creg.Register(name, nil, busNumber, func() (i2c.BusCloser, error) {
		dev, closer, err := open()
		if err != nil {
			return nil, err
		}
		return NewBus(dev, name, closer), nil
	})
}

// Pin adapts one GP pin to periph's gpio.PinIO. Edge detection is only
// available on GP1, which carries the chip's interrupt-on-change detector.
type Pin struct {
	dev  *mcp2221.Device
	n    int
	name string

	edge protocol.IOCEdge
}

var _ gpio.PinIO = (*Pin)(nil)

// NewPin wraps one GP pin, 0 through 3.
func NewPin(dev *mcp2221.Device, n int, name string) (*Pin, error) {
	if n < 0 || n >= protocol.PinCount {
		return nil, fmt.Errorf("%w: pin %d", protocol.ErrInvalidArgument, n)
	}
	if name == "" {
		name = fmt.Sprintf("mcp2221/GP%d", n)
	}
	return &Pin{dev: dev, n: n, name: name}, nil
}

func (p *Pin) String() string { return p.name }
func (p *Pin) Name() string   { return p.name }
func (p *Pin) Number() int    { return p.n }
func (p *Pin) Halt() error    { return nil }

func (p *Pin) Function() string {
	st, err := p.dev.GPIO.Value(p.n)
	switch {
	case errors.Is(err, mcp2221.ErrPinNotGPIO):
		return "ALT"
	case err != nil:
		return "ERR"
	case st.Dir == protocol.DirInput:
		if st.High() {
			return "In/High"
		}
		return "In/Low"
	default:
		if st.High() {
			return "Out/High"
		}
		return "Out/Low"
	}
}

// In switches the pin to GPIO input. The chip has no configurable pulls, so
// only Float and PullNoChange are accepted. Edge detection is supported on
// GP1 only.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if pull != gpio.Float && pull != gpio.PullNoChange {
		return fmt.Errorf("%s: pull %s not supported", p.name, pull)
	}
	iocEdge := protocol.EdgeNone
	switch edge {
	case gpio.NoEdge:
	case gpio.RisingEdge:
		iocEdge = protocol.EdgeRising
	case gpio.FallingEdge:
		iocEdge = protocol.EdgeFalling
	case gpio.BothEdges:
		iocEdge = protocol.EdgeBoth
	}
	if iocEdge != protocol.EdgeNone {
		if p.n != 1 {
			return fmt.Errorf("%s: edge detection only available on GP1", p.name)
		}
		p.edge = iocEdge
		return p.dev.IOC.Configure(iocEdge)
	}
	p.edge = protocol.EdgeNone
	return p.dev.GPIO.Configure(p.n, protocol.PinConfig{
		Function: protocol.FuncGPIO,
		Dir:      protocol.DirInput,
	})
}

func (p *Pin) Read() gpio.Level {
	st, err := p.dev.GPIO.Value(p.n)
	if err != nil {
		return gpio.Low
	}
	return gpio.Level(st.High())
}

// WaitForEdge polls the interrupt flag until an edge shows up or the
// timeout lapses. A non-positive timeout waits forever.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	if p.edge == protocol.EdgeNone {
		return false
	}
	const interval = 2 * time.Millisecond
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		hit, err := p.dev.IOC.Triggered()
		if err != nil {
			return false
		}
		if hit {
			p.dev.IOC.Clear()
			return true
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}

func (p *Pin) Pull() gpio.Pull        { return gpio.Float }
func (p *Pin) DefaultPull() gpio.Pull { return gpio.Float }

// Out switches the pin to GPIO output at the given level.
func (p *Pin) Out(l gpio.Level) error {
	var updates [protocol.PinCount]protocol.PinUpdate
	updates[p.n] = protocol.PinUpdate{
		SetLevel: true,
		SetDir:   true,
		Dir:      protocol.DirOutput,
	}
	if l {
		updates[p.n].Level = 1
	}
	return p.dev.GPIO.Set(updates)
}

func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return fmt.Errorf("%s: pwm not supported", p.name)
}

// RegisterPins publishes all four GP pins in the gpioreg registry. prefix
// defaults to "mcp2221".
func RegisterPins(dev *mcp2221.Device, prefix string) error {
	if prefix == "" {
		prefix = "mcp2221"
	}
	for n := 0; n < protocol.PinCount; n++ {
		p, err := NewPin(dev, n, fmt.Sprintf("%s/GP%d", prefix, n))
		if err != nil {
			return err
		}
		if err := gpioreg.Register(p); err != nil {
			return fmt.Errorf("gpioreg.Register(): %w", err)
		}
	}
	return nil
}
