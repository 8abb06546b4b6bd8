package periphbus

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/BertoldVdb/go-mcp2221a/mcp2221"
	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

type fakeSession struct {
	t       *testing.T
	handler func(req protocol.Report) protocol.Report
	reqs    []protocol.Report
}

func (f *fakeSession) Exchange(req protocol.Report, _ time.Duration) (protocol.Report, error) {
	f.reqs = append(f.reqs, req)
	if f.handler == nil {
		f.t.Fatalf("unexpected exchange: %v", req.Command())
	}
	return f.handler(req), nil
}

func (f *fakeSession) Send(req protocol.Report) error { return nil }

func newTestBus(t *testing.T) (*Bus, *fakeSession) {
	sess := &fakeSession{t: t}
	dev, err := mcp2221.New(sess, mcp2221.Config{
		ExchangeTimeout: time.Second,
		PollInterval:    time.Millisecond,
		PollTimeout:     100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return NewBus(dev, "test", nil), sess
}

func statusIdle(transferred int) protocol.Report {
	var r protocol.Report
	r[0] = byte(protocol.CmdStatus)
	binary.LittleEndian.PutUint16(r[11:13], uint16(transferred))
	return r
}

func TestBusTx(t *testing.T) {
	bus, sess := newTestBus(t)

	var wrote []byte
	readData := []byte{0x12, 0x34}
	held := false
	sess.handler = func(req protocol.Report) protocol.Report {
		var rsp protocol.Report
		rsp[0] = req[0]
		switch req.Command() {
		case protocol.CmdStatus:
			if held {
				rsp[8] = 0x45
				return rsp
			}
			return statusIdle(2)
		case protocol.CmdI2CWriteNoStop:
			wrote = append([]byte(nil), req[5:7]...)
			held = true
			return rsp
		case protocol.CmdI2CReadRepStart:
			held = false
			return rsp
		case protocol.CmdI2CFetchReadData:
			rsp[3] = byte(len(readData))
			copy(rsp[4:], readData)
			return rsp
		}
		t.Fatalf("unexpected command %v", req.Command())
		return rsp
	}

	in := make([]byte, 2)
	if err := bus.Tx(0x44, []byte{0xBE, 0xEF}, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(wrote, []byte{0xBE, 0xEF}) {
		t.Errorf("written = % X, want BE EF", wrote)
	}
	if !bytes.Equal(in, readData) {
		t.Errorf("read = % X, want % X", in, readData)
	}
}

func TestBusTxRejects10BitAddress(t *testing.T) {
	bus, _ := newTestBus(t)
	if err := bus.Tx(0x1F0, nil, nil); err == nil {
		t.Fatal("10-bit address accepted")
	}
}

func TestBusSetSpeed(t *testing.T) {
	bus, sess := newTestBus(t)

	var set protocol.Report
	sess.handler = func(req protocol.Report) protocol.Report {
		set = req
		return statusIdle(0)
	}

	if err := bus.SetSpeed(100 * physic.KiloHertz); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set[3] != 0x20 {
		t.Errorf("speed marker = 0x%02X, want 0x20", set[3])
	}
	if want := byte(protocol.ClkHz/100000 - 3); set[4] != want {
		t.Errorf("divider = %d, want %d", set[4], want)
	}
}

func TestPinOutAndRead(t *testing.T) {
	bus, sess := newTestBus(t)

	level := byte(0)
	sess.handler = func(req protocol.Report) protocol.Report {
		var rsp protocol.Report
		rsp[0] = req[0]
		switch req.Command() {
		case protocol.CmdSetGPIOOutput:
			if req[2+4*0] == 0xFF {
				level = req[3]
			}
			return rsp
		case protocol.CmdGetGPIOValues:
			rsp[2] = level
			rsp[3] = byte(protocol.DirOutput)
			for pin := 1; pin < protocol.PinCount; pin++ {
				rsp[2+2*pin] = protocol.PinLevelNA
				rsp[3+2*pin] = byte(protocol.DirNotAvailable)
			}
			return rsp
		}
		t.Fatalf("unexpected command %v", req.Command())
		return rsp
	}

	pin, err := NewPin(bus.Device(), 0, "")
	if err != nil {
		t.Fatalf("NewPin failed: %v", err)
	}
	if pin.Name() != "mcp2221/GP0" {
		t.Errorf("name = %q", pin.Name())
	}

	if err := pin.Out(gpio.High); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pin.Read() != gpio.High {
		t.Error("pin does not read back high")
	}

	if err := pin.Out(gpio.Low); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pin.Read() != gpio.Low {
		t.Error("pin does not read back low")
	}
}

func TestPinEdgeOnlyOnGP1(t *testing.T) {
	bus, sess := newTestBus(t)
	sess.handler = func(req protocol.Report) protocol.Report {
		var rsp protocol.Report
		rsp[0] = req[0]
		return rsp
	}

	pin, err := NewPin(bus.Device(), 0, "")
	if err != nil {
		t.Fatalf("NewPin failed: %v", err)
	}
	if err := pin.In(gpio.Float, gpio.RisingEdge); err == nil {
		t.Fatal("edge detection accepted on GP0")
	}
}
