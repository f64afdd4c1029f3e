package modem

//go:generate mockgen -destination=mock_transport.go -package=modem . Transport,Dialer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
)

// Transport represents an established, bidirectional byte stream to the
// cellular module.
//
// Read must not block: it returns 0, nil when nothing is queued. Buffered
// reports how many bytes a Read would return right now. SetBaudRate and
// SetFlowControl are out-of-band line controls used during autobaud and
// initialisation.
type Transport interface {
	io.ReadWriteCloser
	Buffered() int
	SetBaudRate(baud int) error
	SetFlowControl(enabled bool) error
}

// Dialer opens a Transport to the module.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a test double) and is intended to be used during modem
// construction only. Once a Transport is obtained, the Dialer is no longer
// needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// DefaultBaudRate is the line speed used when neither BaudRate nor Mode is set.
const DefaultBaudRate = 115200

// maxQueued bounds the receive queue of a serial transport. The oldest
// bytes are dropped first.
const maxQueued = 64 * 1024

// SerialDialer opens the module over a serial port using go.bug.st/serial.
type SerialDialer struct {
	PortName string
	BaudRate int
	// Mode overrides BaudRate and the 8N1 defaults when set.
	Mode *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if d.Mode != nil {
		mode = *d.Mode
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = DefaultBaudRate
	}

	port, err := serial.Open(d.PortName, &mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}

	t := &serialTransport{port: port, mode: mode}
	t.group.Go(t.readLoop)
	return t, nil
}

// serialTransport turns the blocking serial port into the non-blocking
// Transport contract. A single reader goroutine moves bytes from the port
// into an in-memory queue.
type serialTransport struct {
	port  serial.Port
	mode  serial.Mode
	group errgroup.Group

	mu      sync.Mutex
	rx      []byte
	readErr error
	closed  bool
}

func (t *serialTransport) readLoop() error {
	buf := make([]byte, 512)
	for {
		n, err := t.port.Read(buf)

		t.mu.Lock()
		t.rx = append(t.rx, buf[:n]...)
		if over := len(t.rx) - maxQueued; over > 0 {
			t.rx = t.rx[over:]
		}
		if err != nil {
			if !t.closed {
				t.readErr = err
			}
			t.mu.Unlock()
			return err
		}
		t.mu.Unlock()
	}
}

func (t *serialTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.rx) == 0 {
		if t.closed {
			return 0, io.EOF
		}
		return 0, t.readErr
	}
	n := copy(p, t.rx)
	t.rx = t.rx[n:]
	return n, nil
}

func (t *serialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *serialTransport) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rx)
}

func (t *serialTransport) SetBaudRate(baud int) error {
	t.mu.Lock()
	t.mode.BaudRate = baud
	mode := t.mode
	t.mu.Unlock()
	return t.port.SetMode(&mode)
}

// SetFlowControl drives RTS. The module only transmits while RTS is
// asserted once AT&K3 is active.
func (t *serialTransport) SetFlowControl(enabled bool) error {
	return t.port.SetRTS(enabled)
}

func (t *serialTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.port.Close()
	// The reader always ends with the error caused by closing the port.
	_ = t.group.Wait()
	return err
}
