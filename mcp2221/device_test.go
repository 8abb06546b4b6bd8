package mcp2221

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

func TestConfigValidation(t *testing.T) {
	sess := &fakeSession{t: t}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing exchange timeout", Config{PollInterval: time.Millisecond, PollTimeout: time.Second}},
		{"missing poll interval", Config{ExchangeTimeout: time.Second, PollTimeout: time.Second}},
		{"missing poll timeout", Config{ExchangeTimeout: time.Second, PollInterval: time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(sess, tt.cfg); err == nil {
				t.Fatal("incomplete config accepted")
			}
		})
	}

	if _, err := New(nil, Config{
		ExchangeTimeout: time.Second,
		PollInterval:    time.Millisecond,
		PollTimeout:     time.Second,
	}); err == nil {
		t.Fatal("nil session accepted")
	}
}

func TestReset(t *testing.T) {
	dev, sess := newTestDevice(t)

	if err := dev.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sess.reqs) != 0 {
		t.Errorf("reset performed %d exchanges, must not expect a response", len(sess.reqs))
	}
	if len(sess.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sess.sends))
	}
	r := sess.sends[0]
	if r.Command() != protocol.CmdResetChip || r[1] != 0xAB || r[2] != 0xCD || r[3] != 0xEF {
		t.Errorf("reset frame = % X", r[:4])
	}
}

func TestFlashPasswordFlow(t *testing.T) {
	dev, sess := newTestDevice(t)

	unlocked := false
	var stored []byte
	sess.handler = func(req protocol.Report) protocol.Report {
		switch req.Command() {
		case protocol.CmdWriteFlash:
			if !unlocked {
				r := okRsp(protocol.CmdWriteFlash)
				r[1] = protocol.StatusNotAllowed
				return r
			}
			stored = append([]byte(nil), req[2:2+protocol.GPSettingsSize]...)
			return okRsp(protocol.CmdWriteFlash)
		case protocol.CmdSendFlashPassword:
			if bytes.Equal(req[2:10], []byte("secret00")) {
				unlocked = true
				return okRsp(protocol.CmdSendFlashPassword)
			}
			r := okRsp(protocol.CmdSendFlashPassword)
			r[1] = protocol.StatusNotAllowed
			return r
		}
		t.Fatalf("unexpected command %v", req.Command())
		return protocol.Report{}
	}

	payload := []byte{0x10, 0x08, 0x0A, 0x00}

	err := dev.Flash.WriteSector(protocol.SectorGPSettings, payload)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("error = %v, want ErrAccessDenied", err)
	}

	if err := dev.Flash.Unlock([]byte("bad pass")); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("wrong password error = %v, want ErrAccessDenied", err)
	}
	if err := dev.Flash.Unlock([]byte("secret00")); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}

	if err := dev.Flash.WriteSector(protocol.SectorGPSettings, payload); err != nil {
		t.Fatalf("write after unlock failed: %v", err)
	}
	if !bytes.Equal(stored, payload) {
		t.Errorf("stored payload = % X, want % X", stored, payload)
	}
}

func TestFlashStrings(t *testing.T) {
	dev, sess := newTestDevice(t)

	stored := map[protocol.FlashSector][]byte{}
	mfg, err := protocol.EncodeFlashString("Microchip Technology Inc.")
	if err != nil {
		t.Fatal(err)
	}
	stored[protocol.SectorUSBMfg] = mfg

	sess.handler = func(req protocol.Report) protocol.Report {
		switch req.Command() {
		case protocol.CmdReadFlash:
			data := stored[protocol.FlashSector(req[1])]
			r := okRsp(protocol.CmdReadFlash)
			r[2] = byte(len(data))
			copy(r[4:], data)
			return r
		case protocol.CmdWriteFlash:
			data := make([]byte, req[2+0])
			copy(data, req[2:])
			stored[protocol.FlashSector(req[1])] = data
			return okRsp(protocol.CmdWriteFlash)
		}
		t.Fatalf("unexpected command %v", req.Command())
		return protocol.Report{}
	}

	got, err := dev.Flash.USBManufacturer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Microchip Technology Inc." {
		t.Errorf("manufacturer = %q", got)
	}

	if err := dev.Flash.SetUSBProduct("Custom Bridge"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	product, err := dev.Flash.USBProduct()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product != "Custom Bridge" {
		t.Errorf("product round trip = %q", product)
	}
}

func TestFlashFactorySerialReadOnly(t *testing.T) {
	dev, sess := newTestDevice(t)
	sess.handler = func(req protocol.Report) protocol.Report {
		t.Fatalf("request reached the chip: %v", req.Command())
		return protocol.Report{}
	}

	err := dev.Flash.WriteSector(protocol.SectorFactorySerial, []byte{1})
	if !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestGPIOValueSentinels(t *testing.T) {
	dev, sess := newTestDevice(t)

	sess.handler = func(req protocol.Report) protocol.Report {
		if req.Command() != protocol.CmdGetGPIOValues {
			t.Fatalf("unexpected command %v", req.Command())
		}
		r := okRsp(protocol.CmdGetGPIOValues)
		r[2], r[3] = 1, byte(protocol.DirOutput)
		r[4], r[5] = protocol.PinLevelNA, byte(protocol.DirNotAvailable)
		return r
	}

	st, err := dev.GPIO.Value(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.High() {
		t.Errorf("pin 0 = %+v, want high", st)
	}

	if _, err := dev.GPIO.Value(1); !errors.Is(err, ErrPinNotGPIO) {
		t.Fatalf("alternate function pin error = %v, want ErrPinNotGPIO", err)
	}
	if _, err := dev.GPIO.Value(7); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("out of range pin error = %v, want ErrInvalidArgument", err)
	}
}

func TestGPIOSetOutput(t *testing.T) {
	dev, sess := newTestDevice(t)

	var set protocol.Report
	sess.handler = func(req protocol.Report) protocol.Report {
		set = req
		return okRsp(protocol.CmdSetGPIOOutput)
	}

	if err := dev.GPIO.SetOutput(2, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// pin 2 level altered high, everything else untouched
	if set[10] != 0xFF || set[11] != 1 {
		t.Errorf("pin 2 level bytes = % X", set[10:12])
	}
	for _, i := range []int{2, 3, 4, 5, 6, 7, 8, 9, 12, 13, 14, 15, 16, 17} {
		if set[i] != 0 {
			t.Errorf("byte %d = 0x%02X, want untouched", i, set[i])
		}
	}
}

func sramSnapshot(pins [protocol.PinCount]protocol.PinConfig) protocol.Report {
	r := okRsp(protocol.CmdGetSRAMSettings)
	r[2] = protocol.ChipSettingsSize
	r[3] = protocol.PinCount
	for i, p := range pins {
		b := byte(p.Function) | byte(p.Dir)<<3
		if p.Level != 0 {
			b |= 1 << 4
		}
		r[4+protocol.ChipSettingsSize+i] = b
	}
	return r
}

func TestSRAMConfigurePinPreservesOthers(t *testing.T) {
	dev, sess := newTestDevice(t)

	current := [protocol.PinCount]protocol.PinConfig{
		{Function: protocol.FuncGPIO, Dir: protocol.DirOutput, Level: 1},
		{Function: protocol.FuncInterrupt, Dir: protocol.DirInput},
		{Function: protocol.FuncGPIO, Dir: protocol.DirInput},
		{Function: protocol.FuncDAC, Dir: protocol.DirOutput},
	}

	var set protocol.Report
	sess.handler = func(req protocol.Report) protocol.Report {
		switch req.Command() {
		case protocol.CmdGetSRAMSettings:
			return sramSnapshot(current)
		case protocol.CmdSetSRAMSettings:
			set = req
			return okRsp(protocol.CmdSetSRAMSettings)
		}
		t.Fatalf("unexpected command %v", req.Command())
		return protocol.Report{}
	}

	err := dev.SRAM.ConfigurePin(2, protocol.PinConfig{Function: protocol.FuncADC, Dir: protocol.DirInput})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set[7] != 0xFF {
		t.Fatalf("alter-gp flag = 0x%02X, want 0xFF", set[7])
	}
	if set[8] != 1<<4 {
		t.Errorf("pin 0 not preserved: 0x%02X", set[8])
	}
	if set[9] != byte(protocol.FuncInterrupt)|1<<3 {
		t.Errorf("pin 1 not preserved: 0x%02X", set[9])
	}
	if set[10] != byte(protocol.FuncADC)|1<<3 {
		t.Errorf("pin 2 not reconfigured: 0x%02X", set[10])
	}
	if set[11] != byte(protocol.FuncDAC) {
		t.Errorf("pin 3 not preserved: 0x%02X", set[11])
	}
}

func TestADCRead(t *testing.T) {
	dev, sess := newTestDevice(t)

	sess.handler = func(req protocol.Report) protocol.Report {
		r := statusRsp(0x00, 0)
		r[50], r[51] = 0xFF, 0x03
		r[52], r[53] = 0x23, 0x01
		return r
	}

	values, err := dev.ADC.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values != [ADCChannels]uint16{0x3FF, 0x123, 0} {
		t.Errorf("adc = %v", values)
	}

	v, err := dev.ADC.ReadChannel(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0x123 {
		t.Errorf("channel 1 = 0x%03X, want 0x123", v)
	}

	if _, err := dev.ADC.ReadChannel(3); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("channel 3 error = %v, want ErrInvalidArgument", err)
	}
}

func TestDACSet(t *testing.T) {
	dev, sess := newTestDevice(t)

	var set protocol.Report
	sess.handler = func(req protocol.Report) protocol.Report {
		set = req
		return okRsp(protocol.CmdSetSRAMSettings)
	}

	if err := dev.DAC.Set(0x15); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set[4] != 1<<7|0x15 {
		t.Errorf("dac value byte = 0x%02X", set[4])
	}

	if err := dev.DAC.Set(0x20); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("oversized value error = %v, want ErrInvalidArgument", err)
	}
	if err := dev.DAC.Enable(1); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("pin 1 error = %v, want ErrInvalidArgument", err)
	}
}

func TestIOCTriggeredAndClear(t *testing.T) {
	dev, sess := newTestDevice(t)

	latched := true
	var lastSet protocol.Report
	sess.handler = func(req protocol.Report) protocol.Report {
		switch req.Command() {
		case protocol.CmdStatus:
			r := statusRsp(0x00, 0)
			if latched {
				r[24] = 1
			}
			return r
		case protocol.CmdSetSRAMSettings:
			lastSet = req
			if req[6]&0x01 != 0 {
				latched = false
			}
			return okRsp(protocol.CmdSetSRAMSettings)
		}
		t.Fatalf("unexpected command %v", req.Command())
		return protocol.Report{}
	}

	hit, err := dev.IOC.Triggered()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit {
		t.Error("latched edge not reported")
	}

	if err := dev.IOC.Clear(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lastSet[6]&(1<<7) == 0 || lastSet[6]&0x01 == 0 {
		t.Errorf("clear request byte = 0x%02X", lastSet[6])
	}

	hit, err = dev.IOC.Triggered()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Error("edge still reported after clear")
	}
}
