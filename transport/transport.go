// Package transport owns the USB HID connection to the chip and serializes
// all report exchanges on it. The chip is single-buffered and matches
// responses to requests purely by ordering, so the session enforces a strict
// one-outstanding-request discipline with a mutex instead of a request-id
// map.
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

var (
	// ErrTimeout is returned when no response arrived within the exchange
	// deadline. The caller decides whether to retry.
	ErrTimeout = errors.New("transport: response timeout")

	// ErrClosed is returned once the session was closed or the device
	// handle was invalidated (unplug, reset). The session cannot recover;
	// open a new one.
	ErrClosed = errors.New("transport: session closed")
)

// Conn is the raw HID report pipe the session runs on. *hid.Device from
// github.com/karalabe/hid satisfies it; tests substitute a scripted
// implementation.
type Conn interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Session serializes request/response exchanges on one open device handle.
// It is safe for concurrent use; concurrent callers queue on the internal
// mutex so that exactly one exchange is in flight at any time.
type Session struct {
	mu  sync.Mutex
	dev Conn

	reports chan protocol.Report

	stateMu sync.Mutex
	closed  bool
	readErr error
}

// NewSession wraps an open connection. The session takes ownership of the
// connection and closes it with Close.
func NewSession(dev Conn) *Session {
	s := &Session{
		dev: dev,
		// one slot of buffering so the reader never blocks between a late
		// response and the next exchange draining it
		reports: make(chan protocol.Report, 1),
	}
	go s.readLoop()
	return s
}

// readLoop moves incoming reports from the device into the report channel.
// The HID read only unblocks on data or on the handle being closed, so the
// loop ends when the device goes away.
func (s *Session) readLoop() {
	for {
		var r protocol.Report
		n, err := s.dev.Read(r[:])
		if err != nil {
			s.stateMu.Lock()
			if !s.closed {
				s.readErr = err
			}
			s.stateMu.Unlock()
			close(s.reports)
			return
		}
		if n < protocol.ReportSize {
			// short reads do not happen on a healthy interrupt endpoint;
			// drop the report and let the exchange time out
			continue
		}
		select {
		case s.reports <- r:
		default:
			// an undrained stale response is still buffered; only this
			// goroutine sends, so after dropping it the slot is free
			select {
			case <-s.reports:
			default:
			}
			select {
			case s.reports <- r:
			default:
			}
		}
	}
}

// broken returns the terminal error of the session, if any.
func (s *Session) broken() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readErr != nil {
		return fmt.Errorf("transport: device read failed: %w", s.readErr)
	}
	return nil
}

// Exchange sends one request report and waits at most timeout for the
// single matching response. A non-positive timeout is a configuration
// error, never an infinite wait. The session performs no retries.
func (s *Session) Exchange(req protocol.Report, timeout time.Duration) (protocol.Report, error) {
	if timeout <= 0 {
		return protocol.Report{}, fmt.Errorf("transport: exchange timeout not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.broken(); err != nil {
		return protocol.Report{}, err
	}

	// drop any stale report a previously timed-out exchange left behind
	select {
	case <-s.reports:
	default:
	}

	if _, err := s.dev.Write(req[:]); err != nil {
		return protocol.Report{}, fmt.Errorf("transport: device write failed: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rsp, ok := <-s.reports:
		if !ok {
			return protocol.Report{}, s.broken()
		}
		return rsp, nil
	case <-timer.C:
		return protocol.Report{}, ErrTimeout
	}
}

// Send transmits a request without waiting for a response. The only command
// that behaves this way is the chip reset, after which the handle is dead
// and the session must be closed.
func (s *Session) Send(req protocol.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.broken(); err != nil {
		return err
	}
	if _, err := s.dev.Write(req[:]); err != nil {
		return fmt.Errorf("transport: device write failed: %w", err)
	}
	return nil
}

// Close releases the device handle. Pending and future calls fail with
// ErrClosed.
func (s *Session) Close() error {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return nil
	}
	s.closed = true
	s.stateMu.Unlock()

	// closing the handle unblocks the read loop
	return s.dev.Close()
}
