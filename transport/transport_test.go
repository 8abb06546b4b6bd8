package transport

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

// fakeConn simulates the HID report pipe. Responses are either scripted per
// write through the reply callback or injected directly with push.
type fakeConn struct {
	mu     sync.Mutex
	wrote  []protocol.Report
	reply  func(req protocol.Report) []protocol.Report
	rd     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		rd:     make(chan []byte, 8),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Write(b []byte) (int, error) {
	var req protocol.Report
	copy(req[:], b)

	c.mu.Lock()
	c.wrote = append(c.wrote, req)
	reply := c.reply
	c.mu.Unlock()

	if reply != nil {
		for _, rsp := range reply(req) {
			c.push(rsp[:])
		}
	}
	return len(b), nil
}

func (c *fakeConn) Read(b []byte) (int, error) {
	select {
	case data := <-c.rd:
		return copy(b, data), nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(b []byte) {
	data := make([]byte, len(b))
	copy(data, b)
	c.rd <- data
}

func echoReply(req protocol.Report) []protocol.Report {
	var rsp protocol.Report
	rsp[0] = req[0]
	return []protocol.Report{rsp}
}

func TestExchange(t *testing.T) {
	conn := newFakeConn()
	conn.reply = echoReply
	s := NewSession(conn)
	defer s.Close()

	req := protocol.EncodeStatus()
	rsp, err := s.Exchange(req, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rsp.Command() != req.Command() {
		t.Errorf("response command = %v, want %v", rsp.Command(), req.Command())
	}
	if len(conn.wrote) != 1 {
		t.Errorf("writes = %d, want 1", len(conn.wrote))
	}
}

func TestExchangeTimeout(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn)
	defer s.Close()

	_, err := s.Exchange(protocol.EncodeStatus(), 10*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestExchangeRequiresTimeout(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn)
	defer s.Close()

	if _, err := s.Exchange(protocol.EncodeStatus(), 0); err == nil {
		t.Fatal("zero timeout accepted")
	}
}

func TestStaleResponseDropped(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn)
	defer s.Close()

	// the first exchange gets no answer and times out
	if _, err := s.Exchange(protocol.EncodeStatus(), 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}

	// its response arrives late
	var stale protocol.Report
	stale[0] = byte(protocol.CmdStatus)
	stale[8] = 0x99
	conn.push(stale[:])
	time.Sleep(20 * time.Millisecond)

	// the next exchange must not be answered by the stale report
	conn.mu.Lock()
	conn.reply = echoReply
	conn.mu.Unlock()

	rsp, err := s.Exchange(protocol.EncodeGPIOGet(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rsp.Command() != protocol.CmdGetGPIOValues {
		t.Errorf("response command = %v, stale report leaked through", rsp.Command())
	}
}

func TestUnsolicitedReportsDoNotStallReader(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn)
	defer s.Close()

	// two reports arrive with nothing draining them; the reader must keep
	// running and hold on to the newest one only
	var first, second protocol.Report
	first[0] = byte(protocol.CmdStatus)
	second[0] = byte(protocol.CmdGetSRAMSettings)
	conn.push(first[:])
	conn.push(second[:])
	time.Sleep(20 * time.Millisecond)

	conn.mu.Lock()
	conn.reply = echoReply
	conn.mu.Unlock()

	// a stalled reader would deliver the leftover report here instead of
	// the scripted reply
	rsp, err := s.Exchange(protocol.EncodeGPIOGet(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rsp.Command() != protocol.CmdGetGPIOValues {
		t.Errorf("response command = %v, buffered report leaked through", rsp.Command())
	}
}

func TestShortReadsDropped(t *testing.T) {
	conn := newFakeConn()
	conn.reply = func(req protocol.Report) []protocol.Report {
		conn.push([]byte{byte(req[0]), 0x00}) // truncated frame
		return nil
	}
	s := NewSession(conn)
	defer s.Close()

	if _, err := s.Exchange(protocol.EncodeStatus(), 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestClose(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn)

	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	if _, err := s.Exchange(protocol.EncodeStatus(), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("error = %v, want ErrClosed", err)
	}
	if err := s.Send(protocol.EncodeReset()); !errors.Is(err, ErrClosed) {
		t.Fatalf("send error = %v, want ErrClosed", err)
	}
}

func TestSend(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn)
	defer s.Close()

	if err := s.Send(protocol.EncodeReset()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.wrote) != 1 || conn.wrote[0].Command() != protocol.CmdResetChip {
		t.Errorf("writes = %v", conn.wrote)
	}
}
