package modem

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"i4.energy/across/assistnow/at"
)

// Command is one AT transaction.
type Command struct {
	// Text is written as "AT"+Text+"\r" unless Raw is set.
	Text string
	// Raw writes Text verbatim, for data following a prompt.
	Raw bool
	// NoSend writes nothing and only waits for the terminator.
	NoSend bool
	// Terminator is the success pattern; empty means "OK\r\n". It may be a
	// short sentinel such as ">".
	Terminator string
	// Timeout bounds the wait; zero means the configured AT timeout.
	Timeout time.Duration
}

func (c Command) String() string {
	switch {
	case c.NoSend:
		return "<poll>"
	case c.Raw:
		return fmt.Sprintf("<raw %d bytes>", len(c.Text))
	default:
		return at.Escape + c.Text
	}
}

// errorTerminators are matched in parallel with the success terminator.
// The CME and CMS forms are followed by a numeric code up to the end of
// the line.
var errorTerminators = []string{at.ResponseError, at.CmeError + " ", at.CmsError + " "}

const readChunk = 256

// matcher is a streaming prefix match of one terminator.
type matcher struct {
	pattern string
	idx     int
}

func (m *matcher) feed(c byte) bool {
	switch {
	case c == m.pattern[m.idx]:
		m.idx++
	case c == m.pattern[0]:
		m.idx = 1
	default:
		m.idx = 0
	}
	if m.idx == len(m.pattern) {
		m.idx = 0
		return true
	}
	return false
}

func (m *matcher) partial() bool {
	return m.idx > 0
}

// engine runs one transaction at a time over a Transport and copies every
// byte it reads into the backlog.
type engine struct {
	mu        sync.Mutex
	transport Transport
	backlog   *Backlog
	timeout   time.Duration
	pollDelay time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	// pending holds bytes read past the last terminator
	pending []byte
}

func newEngine(t Transport, backlog *Backlog, timeout time.Duration, logger *slog.Logger) *engine {
	return &engine{
		transport: t,
		backlog:   backlog,
		timeout:   timeout,
		pollDelay: defaultPollDelay,
		clock:     clock.New(),
		logger:    logger,
	}
}

// drain moves bytes already queued by the transport into the backlog.
func (e *engine) drain() error {
	buf := make([]byte, readChunk)
	for e.transport.Buffered() > 0 {
		n, err := e.transport.Read(buf)
		if n > 0 {
			e.backlog.Write(buf[:n])
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

// poll drains the transport into the backlog without sending anything.
func (e *engine) poll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drain()
}

func (e *engine) transact(ctx context.Context, cmd Command) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	terminator := cmd.Terminator
	if terminator == "" {
		terminator = at.ResponseOK
	}
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = e.timeout
	}

	if !cmd.NoSend {
		// Stale bytes belong to earlier exchanges or are URCs. A bare
		// poll keeps them: they are the continuation it waits for.
		e.pending = nil
		if err := e.drain(); err != nil {
			e.logger.Warn("drain before command failed", "error", err)
		}
		wire := cmd.Text
		if !cmd.Raw {
			wire = at.Escape + cmd.Text + "\r"
		}
		if _, err := e.transport.Write([]byte(wire)); err != nil {
			return "", &CommandError{Command: cmd.String(), Code: -1, Err: fmt.Errorf("%w: write: %w", ErrNoResponse, err)}
		}
	}

	resp, code, err := e.await(ctx, terminator, timeout)
	e.backlog.Prune(at.IsURC)
	if dropped := e.backlog.Dropped(); dropped > 0 {
		e.logger.Warn("backlog overflow", "bytes", dropped)
	}
	if err != nil {
		return resp, &CommandError{Command: cmd.String(), Code: code, Err: err}
	}
	return resp, nil
}

// await reads until the terminator, an error terminator or the deadline.
// It returns the response, the modem error code (or -1) and the outcome.
// Bytes read past the terminator are kept in pending for a following poll.
func (e *engine) await(ctx context.Context, terminator string, timeout time.Duration) (string, int, error) {
	success := matcher{pattern: terminator}
	failures := make([]matcher, len(errorTerminators))
	for i, p := range errorTerminators {
		failures[i] = matcher{pattern: p}
	}

	var (
		resp     []byte
		codeFrom = -1 // start of the CME/CMS code once its prefix matched
		buf      = make([]byte, readChunk)
		deadline = e.clock.Now().Add(timeout)
		chunk    = e.pending
		readErr  error
	)
	e.pending = nil

	for ctx.Err() == nil {
		if len(chunk) == 0 {
			n := e.transport.Buffered()
			if n == 0 {
				if !e.clock.Now().Before(deadline) {
					break
				}
				e.clock.Sleep(e.pollDelay)
				continue
			}
			n, readErr = e.transport.Read(buf[:min(n, len(buf))])
			if n > 0 {
				e.backlog.Write(buf[:n])
			}
			chunk = buf[:n]
		}

		for i, c := range chunk {
			resp = append(resp, c)
			if codeFrom >= 0 {
				if c == '\n' {
					e.keep(chunk[i+1:])
					return string(resp), parseCode(string(resp[codeFrom:])), ErrProtocol
				}
				continue
			}
			if success.feed(c) {
				e.keep(chunk[i+1:])
				return string(resp), -1, nil
			}
			for j := range failures {
				if !failures[j].feed(c) {
					continue
				}
				if j == 0 {
					e.keep(chunk[i+1:])
					return string(resp), -1, ErrProtocol
				}
				codeFrom = len(resp)
			}
		}

		if readErr != nil {
			if len(resp) == 0 {
				return "", -1, fmt.Errorf("%w: read: %w", ErrNoResponse, readErr)
			}
			return string(resp), -1, fmt.Errorf("%w: read: %w", ErrUnexpectedResponse, readErr)
		}
		if len(chunk) == 0 {
			e.clock.Sleep(e.pollDelay)
		}
		chunk = nil
	}

	switch {
	case codeFrom >= 0:
		return string(resp), parseCode(string(resp[codeFrom:])), ErrProtocol
	case len(resp) == 0 && ctx.Err() != nil:
		return "", -1, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	case len(resp) == 0:
		return "", -1, ErrNoResponse
	case success.partial() || anyPartial(failures) || ctx.Err() != nil:
		return string(resp), -1, ErrTimeout
	default:
		return string(resp), -1, ErrUnexpectedResponse
	}
}

// keep saves bytes that followed the terminator in the same read. They are
// already in the backlog.
func (e *engine) keep(rest []byte) {
	if len(rest) > 0 {
		e.pending = bytes.Clone(rest)
	}
}

func anyPartial(ms []matcher) bool {
	for _, m := range ms {
		if m.partial() {
			return true
		}
	}
	return false
}

func parseCode(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return n
}
