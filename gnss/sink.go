// Package gnss writes assistance frames to an external GNSS receiver.
package gnss

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	slib "github.com/jacobsa/go-serial/serial"
)

// DefaultBaudRate is the factory rate of u-blox M8/M10 receivers.
const DefaultBaudRate = 38400

var ErrClosed = errors.New("gnss: sink closed")

// SerialSink forwards each Write to a receiver UART unchanged. Callers
// write one complete frame at a time; a frame is never split across
// writes to the port unless the port itself returns short.
type SerialSink struct {
	mu     sync.Mutex
	port   io.WriteCloser
	path   string
	logger *slog.Logger
}

// OpenSerialSink opens the receiver port at path for writing.
func OpenSerialSink(path string, baud uint, logger *slog.Logger) (*SerialSink, error) {
	if path == "" {
		return nil, errors.New("gnss: serial path is required")
	}
	if baud == 0 {
		baud = DefaultBaudRate
	}
	options := slib.OpenOptions{
		PortName:        path,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}
	port, err := slib.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open gnss port %s: %w", path, err)
	}
	s := NewSerialSink(port, logger)
	s.path = path
	return s, nil
}

// NewSerialSink wraps an already open port.
func NewSerialSink(port io.WriteCloser, logger *slog.Logger) *SerialSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SerialSink{port: port, logger: logger}
}

func (s *SerialSink) Write(frame []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return 0, ErrClosed
	}

	written := 0
	for written < len(frame) {
		n, err := s.port.Write(frame[written:])
		written += n
		if err != nil {
			return written, fmt.Errorf("write gnss frame: %w", err)
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	s.logger.Debug("frame forwarded to receiver", "port", s.path, "bytes", written)
	return written, nil
}

// Close releases the port. Later writes fail with ErrClosed.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return ErrClosed
	}
	err := s.port.Close()
	s.port = nil
	return err
}
