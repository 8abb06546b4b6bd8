package mcp2221

import (
	"errors"
	"fmt"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

// I2C drives the chip's I2C engine. The engine executes the bus protocol on
// its own; the host only issues transfer commands and then polls the status
// register until the engine reports done, failed or still running. Each
// transfer runs through an explicit state machine:
//
//	idle -> issued -> polling -> completed | failed | timed out
//
// On a poll timeout the manager issues exactly one cancel so the bus is
// left idle for the next transaction.
type I2C struct {
	*Device
}

// Distinct I2C failure kinds. Callers usually react differently to each
// (retry after NACK, rescan after collision, abort after timeout), so they
// are never folded into a generic chip error. All of them can be matched
// with errors.Is.
var (
	// ErrAddressNack: no slave acknowledged the address.
	ErrAddressNack = errors.New("mcp2221: i2c address not acknowledged")

	// ErrDataNack: the slave rejected a data byte mid-transfer.
	ErrDataNack = errors.New("mcp2221: i2c data not acknowledged")

	// ErrBusCollision: the engine lost arbitration or found the bus driven
	// by someone else.
	ErrBusCollision = errors.New("mcp2221: i2c bus collision")

	// ErrBusTimeout: the engine's own bus timeout expired (clock
	// stretching beyond limits, stuck lines).
	ErrBusTimeout = errors.New("mcp2221: i2c bus timeout")

	// ErrPollTimeout: the transfer was still running when the configured
	// poll deadline lapsed. The manager has already cancelled it.
	ErrPollTimeout = errors.New("mcp2221: i2c transfer deadline exceeded")
)

func faultErr(f protocol.EngineFault, state byte) error {
	var base error
	switch f {
	case protocol.FaultAddressNack:
		base = ErrAddressNack
	case protocol.FaultDataNack:
		base = ErrDataNack
	case protocol.FaultBusCollision:
		base = ErrBusCollision
	case protocol.FaultBusTimeout:
		base = ErrBusTimeout
	default:
		base = fmt.Errorf("mcp2221: i2c engine fault %v", f)
	}
	return fmt.Errorf("%w (engine state 0x%02X)", base, state)
}

// txState is the phase of one I2C transaction.
type txState int

const (
	txIdle txState = iota
	txIssued
	txPolling
	txCompleted
	txFailed
	txTimedOut
)

func (s txState) String() string {
	switch s {
	case txIdle:
		return "idle"
	case txIssued:
		return "issued"
	case txPolling:
		return "polling"
	case txCompleted:
		return "completed"
	case txFailed:
		return "failed"
	case txTimedOut:
		return "timed out"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transaction tracks one transfer through the state machine. The poll
// budget is expressed in intervals rather than wall time so tests can
// script the exact number of observations.
type transaction struct {
	dev    *Device
	state  txState
	budget int
}

func (mod *I2C) begin() *transaction {
	budget := int(mod.cfg.PollTimeout / mod.cfg.PollInterval)
	if budget < 1 {
		budget = 1
	}
	return &transaction{dev: mod.Device, state: txIdle, budget: budget}
}

// to moves the transaction to the next phase.
func (t *transaction) to(s txState) {
	if t.state != s {
		t.dev.log("i2c transaction %v -> %v", t.state, s)
	}
	t.state = s
}

// tick burns one poll interval. When the budget is exhausted the
// transaction moves to timed out, issues its single cancel and reports
// ErrPollTimeout.
func (t *transaction) tick() error {
	if t.budget == 0 {
		t.to(txTimedOut)
		t.dev.log("i2c transfer deadline exceeded, cancelling")
		if _, err := t.dev.Status.SetParameters(protocol.SetParametersRequest{CancelTransfer: true}); err != nil {
			return fmt.Errorf("%w (cancel failed: %v)", ErrPollTimeout, err)
		}
		return ErrPollTimeout
	}
	t.budget--
	t.dev.sleep(t.dev.cfg.PollInterval)
	return nil
}

// wait polls the engine status until done reports true, a fault shows up or
// the budget runs out.
func (t *transaction) wait(done func(protocol.EngineStatus) (bool, error)) error {
	for {
		stat, err := t.dev.Status.Get()
		if err != nil {
			t.to(txFailed)
			return fmt.Errorf("status(): %w", err)
		}
		es := stat.Engine
		if f := es.Fault(); f != protocol.FaultNone {
			t.to(txFailed)
			return faultErr(f, es.State)
		}
		ok, err := done(es)
		if err != nil {
			t.to(txFailed)
			return err
		}
		if ok {
			return nil
		}
		if err := t.tick(); err != nil {
			return err
		}
	}
}

// ensureIdle puts the engine into a defined state before issuing a new
// transfer. A bus held by a previous no-stop write is fine when the new
// transfer continues it with a repeated start.
func (t *transaction) ensureIdle(allowHold bool) error {
	stat, err := t.dev.Status.Get()
	if err != nil {
		return fmt.Errorf("status(): %w", err)
	}
	es := stat.Engine
	if es.Idle() || (allowHold && es.HoldingNoStop()) {
		return nil
	}
	t.dev.log("i2c engine not idle (state 0x%02X), cancelling stale transfer", es.State)
	if _, err := t.dev.Status.SetParameters(protocol.SetParametersRequest{CancelTransfer: true}); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	return nil
}

// Cancel aborts an in-progress transfer, returning the bus to idle. This is
// the only protocol-level cancellation the chip offers.
func (mod *I2C) Cancel() error {
	stat, err := mod.Status.SetParameters(protocol.SetParametersRequest{CancelTransfer: true})
	if err != nil {
		return err
	}
	if stat.CancelResult == protocol.CancelMarked {
		// the engine needs a moment to wind the transfer down
		mod.sleep(mod.cfg.PollInterval)
	}
	return nil
}

// Write transmits data to the given 7-bit address as one transfer with a
// normal START and a terminating STOP.
func (mod *I2C) Write(addr byte, data []byte) error {
	return mod.write(protocol.I2CModeStart, addr, data)
}

// WriteRepeatedStart transmits data continuing a bus held by a previous
// no-stop transfer, using a repeated START.
func (mod *I2C) WriteRepeatedStart(addr byte, data []byte) error {
	return mod.write(protocol.I2CModeRepeatedStart, addr, data)
}

// WriteNoStop transmits data but keeps the bus claimed afterwards, so a
// follow-up repeated-start transfer can address the same slave atomically.
func (mod *I2C) WriteNoStop(addr byte, data []byte) error {
	return mod.write(protocol.I2CModeNoStop, addr, data)
}

// Read receives n bytes from the given 7-bit address with a normal START.
func (mod *I2C) Read(addr byte, n int) ([]byte, error) {
	return mod.read(protocol.I2CModeStart, addr, n)
}

// ReadRepeatedStart receives n bytes continuing a held bus with a repeated
// START.
func (mod *I2C) ReadRepeatedStart(addr byte, n int) ([]byte, error) {
	return mod.read(protocol.I2CModeRepeatedStart, addr, n)
}

func (mod *I2C) write(mode protocol.I2CMode, addr byte, data []byte) error {
	if len(data) > protocol.I2CTransferMax {
		return fmt.Errorf("%w: i2c transfer length %d out of range", protocol.ErrInvalidArgument, len(data))
	}
	total := len(data)

	t := mod.begin()
	if err := t.ensureIdle(mode == protocol.I2CModeRepeatedStart); err != nil {
		return err
	}

	t.to(txIssued)
	pos := 0
	for {
		end := pos + protocol.I2CWriteChunkMax
		if end > total {
			end = total
		}
		req, err := protocol.EncodeI2CWrite(mode, addr, uint16(total), data[pos:end])
		if err != nil {
			t.to(txFailed)
			return err
		}
		rsp, err := mod.exchange(req)
		if err != nil {
			t.to(txFailed)
			return fmt.Errorf("exchange(): %w", err)
		}
		if err := protocol.DecodeI2CWriteResponse(mode, &rsp); err != nil {
			var chip *protocol.ChipError
			if errors.As(err, &chip) && chip.Busy() {
				// the engine is still clocking out the previous chunk;
				// wait for the buffer to drain and resend this one
				if err := t.wait(func(es protocol.EngineStatus) (bool, error) {
					return es.BufferCounter == 0, nil
				}); err != nil {
					return err
				}
				continue
			}
			t.to(txFailed)
			return fmt.Errorf("i2c write to 0x%02X: %w", addr, err)
		}
		pos = end
		if pos >= total {
			break
		}
	}

	t.to(txPolling)
	err := t.wait(func(es protocol.EngineStatus) (bool, error) {
		if mode == protocol.I2CModeNoStop && es.HoldingNoStop() {
			return true, nil
		}
		return es.Idle() && int(es.Transferred) == total, nil
	})
	if err != nil {
		return fmt.Errorf("i2c write to 0x%02X: %w", addr, err)
	}
	t.to(txCompleted)
	return nil
}

func (mod *I2C) read(mode protocol.I2CMode, addr byte, n int) ([]byte, error) {
	if n < 0 || n > protocol.I2CTransferMax {
		return nil, fmt.Errorf("%w: i2c transfer length %d out of range", protocol.ErrInvalidArgument, n)
	}

	t := mod.begin()
	if err := t.ensureIdle(mode == protocol.I2CModeRepeatedStart); err != nil {
		return nil, err
	}

	req, err := protocol.EncodeI2CRead(mode, addr, uint16(n))
	if err != nil {
		return nil, err
	}
	t.to(txIssued)
	rsp, err := mod.exchange(req)
	if err != nil {
		t.to(txFailed)
		return nil, fmt.Errorf("exchange(): %w", err)
	}
	if err := protocol.DecodeI2CReadResponse(mode, &rsp); err != nil {
		t.to(txFailed)
		return nil, fmt.Errorf("i2c read from 0x%02X: %w", addr, err)
	}

	t.to(txPolling)
	buf := make([]byte, 0, n)
	for len(buf) < n {
		rsp, err := mod.exchange(protocol.EncodeI2CFetch())
		if err != nil {
			t.to(txFailed)
			return nil, fmt.Errorf("exchange(): %w", err)
		}
		chunk, err := protocol.DecodeI2CFetch(&rsp)
		if err != nil {
			if errors.Is(err, protocol.ErrReadNotReady) {
				// nothing buffered yet; check the engine for faults, wait
				// an interval and fetch again
				stat, err := mod.Status.Get()
				if err != nil {
					t.to(txFailed)
					return nil, fmt.Errorf("status(): %w", err)
				}
				if f := stat.Engine.Fault(); f != protocol.FaultNone {
					t.to(txFailed)
					return nil, fmt.Errorf("i2c read from 0x%02X: %w", addr, faultErr(f, stat.Engine.State))
				}
				if err := t.tick(); err != nil {
					return nil, fmt.Errorf("i2c read from 0x%02X: %w", addr, err)
				}
				continue
			}
			t.to(txFailed)
			return nil, fmt.Errorf("i2c read from 0x%02X: %w", addr, err)
		}
		if len(buf)+len(chunk) > n {
			t.to(txFailed)
			return nil, fmt.Errorf("i2c read from 0x%02X: %w", addr,
				&protocol.MalformedResponseError{Want: protocol.CmdI2CFetchReadData,
					Reason: fmt.Sprintf("%d bytes past requested length", len(buf)+len(chunk)-n)})
		}
		if len(chunk) == 0 {
			if err := t.tick(); err != nil {
				return nil, fmt.Errorf("i2c read from 0x%02X: %w", addr, err)
			}
			continue
		}
		buf = append(buf, chunk...)
	}

	err = t.wait(func(es protocol.EngineStatus) (bool, error) {
		return es.ReadDone(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("i2c read from 0x%02X: %w", addr, err)
	}
	t.to(txCompleted)
	return buf, nil
}

// ReadReg performs the common write-then-read register access: the register
// pointer is written without releasing the bus, then n bytes are read with
// a repeated start.
func (mod *I2C) ReadReg(addr byte, reg byte, n int) ([]byte, error) {
	if err := mod.WriteNoStop(addr, []byte{reg}); err != nil {
		return nil, fmt.Errorf("WriteNoStop(): %w", err)
	}
	return mod.ReadRepeatedStart(addr, n)
}

// ReadReg16 is ReadReg for devices with 16-bit register pointers. When msb
// is true the pointer is sent most significant byte first.
func (mod *I2C) ReadReg16(addr byte, reg uint16, msb bool, n int) ([]byte, error) {
	ptr := []byte{byte(reg), byte(reg >> 8)}
	if msb {
		ptr[0], ptr[1] = ptr[1], ptr[0]
	}
	if err := mod.WriteNoStop(addr, ptr); err != nil {
		return nil, fmt.Errorf("WriteNoStop(): %w", err)
	}
	return mod.ReadRepeatedStart(addr, n)
}

// WriteRead writes out and then reads len(in) bytes from the same address
// as one atomic bus operation. Either slice may be empty.
func (mod *I2C) WriteRead(addr byte, out []byte, in []byte) error {
	if len(out) > 0 {
		mode := protocol.I2CModeStart
		if len(in) > 0 {
			mode = protocol.I2CModeNoStop
		}
		if err := mod.write(mode, addr, out); err != nil {
			return err
		}
	}
	if len(in) > 0 {
		mode := protocol.I2CModeStart
		if len(out) > 0 {
			mode = protocol.I2CModeRepeatedStart
		}
		data, err := mod.read(mode, addr, len(in))
		if err != nil {
			return err
		}
		copy(in, data)
	}
	return nil
}

// Scan probes every address in [start, stop] with a zero-length write and
// returns the addresses that acknowledged. Probe NACKs are expected and
// swallowed; any other failure aborts the scan.
func (mod *I2C) Scan(start, stop byte) ([]byte, error) {
	if start > stop || stop > protocol.I2CAddrMax {
		return nil, fmt.Errorf("%w: scan range [0x%02X, 0x%02X]", protocol.ErrInvalidArgument, start, stop)
	}
	var found []byte
	for addr := int(start); addr <= int(stop); addr++ {
		err := mod.Write(byte(addr), nil)
		switch {
		case err == nil:
			found = append(found, byte(addr))
		case errors.Is(err, ErrAddressNack):
			// nobody home
		default:
			return found, err
		}
	}
	return found, nil
}
