package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"i4.energy/across/assistnow/at"
)

const (
	// autobaudSettle is the time the module needs after +IPR before it
	// accepts commands at the new rate.
	autobaudSettle = 200 * time.Millisecond
	// powerOnPulse is how long the power key is held to switch the module on.
	powerOnPulse = 2 * time.Second
	// bootTime is the wait after a power-on pulse before the first probe.
	bootTime = 5 * time.Second
)

// Modem drives a u-blox LTE module over AT commands. Commands block the
// calling goroutine until their terminator or timeout; one command is on
// the wire at a time.
type Modem struct {
	// transport provides the physical connection to the module
	transport Transport
	// config contains the modem configuration settings
	config Config
	// engine serialises transactions and feeds the backlog
	engine *engine
	// backlog holds received bytes not yet dispatched
	backlog *Backlog
	// demux maps URC kinds to handlers
	demux  *demux
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	// model is the last +CGMM answer, used to pick model quirks
	model string
}

type initMode int

const (
	initStandard initMode = iota
	initAutobaud
	initReset
)

func (i initMode) String() string {
	switch i {
	case initStandard:
		return "standard"
	case initAutobaud:
		return "autobaud"
	default:
		return "reset"
	}
}

// New opens the transport and prepares the driver. It does not talk to
// the module; call Begin for that.
func New(ctx context.Context, config Config) (*Modem, error) {
	if config.Dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}
	return newModem(transport, config), nil
}

func newModem(transport Transport, config Config) *Modem {
	backlog := NewBacklog(config.BacklogSize)
	return &Modem{
		transport: transport,
		config:    config,
		backlog:   backlog,
		engine:    newEngine(transport, backlog, config.ATTimeout, config.Logger),
		demux:     newDemux(config.Logger),
		logger:    config.Logger,
	}
}

// Begin detects the module and applies the base configuration.
//
// Each attempt probes the module by switching echo off. A failed standard
// attempt falls back to autobaud; a failed autobaud falls back to a power
// key reset, and a failed reset goes back to autobaud. The loop gives up
// after MaxInitAttempts with ErrNotDetected.
func (m *Modem) Begin(ctx context.Context) error {
	mode := initStandard
	for attempt := 1; attempt <= m.config.MaxInitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.logger.Debug("modem init attempt", "attempt", attempt, "mode", mode)

		switch mode {
		case initAutobaud:
			if err := m.autobaud(ctx); err != nil {
				m.logger.Debug("autobaud failed", "error", err)
				mode = initReset
				continue
			}
		case initReset:
			if err := m.powerCycle(ctx); err != nil {
				m.logger.Warn("power key pulse failed", "error", err)
			}
			if err := m.AT(ctx); err != nil {
				mode = initAutobaud
				continue
			}
		}

		if err := m.EnableEcho(ctx, false); err != nil {
			m.logger.Debug("module not answering", "mode", mode, "error", err)
			if mode == initStandard {
				mode = initAutobaud
			} else {
				mode = initReset
			}
			continue
		}

		if err := m.configure(ctx); err != nil {
			return fmt.Errorf("configure modem: %w", err)
		}
		return nil
	}
	return ErrNotDetected
}

// configure runs once the module answers.
func (m *Modem) configure(ctx context.Context) error {
	if err := m.expectOK(ctx, at.CmdNumericErrors); err != nil {
		return err
	}
	if m.config.FlowControl {
		if err := m.SetFlowControl(ctx, true); err != nil {
			return err
		}
	}
	return nil
}

// autobaud walks the supported rates, asking the module to switch to the
// configured rate at each, then probes at the configured rate.
func (m *Modem) autobaud(ctx context.Context) error {
	for _, baud := range AutobaudRates {
		if err := m.transport.SetBaudRate(baud); err != nil {
			return fmt.Errorf("set local baud %d: %w", baud, err)
		}
		// The module may not answer at a wrong rate; only the switch matters.
		_, _ = m.SendCommandWithResponse(ctx, Command{Text: fmt.Sprintf("%s%d", at.CmdBaudRate, m.config.BaudRate), Timeout: 100 * time.Millisecond})
		m.Pause(autobaudSettle)
		if err := m.transport.SetBaudRate(m.config.BaudRate); err != nil {
			return fmt.Errorf("set local baud %d: %w", m.config.BaudRate, err)
		}
		if err := m.AT(ctx); err == nil {
			m.logger.Info("module found by autobaud", "from", baud, "baud", m.config.BaudRate)
			return nil
		}
	}
	return ErrNotDetected
}

func (m *Modem) powerCycle(ctx context.Context) error {
	if m.config.PowerKey == nil {
		return nil
	}
	if err := m.config.PowerKey.Pulse(ctx, powerOnPulse); err != nil {
		return err
	}
	m.Pause(bootTime)
	return nil
}

// PowerOn pulses the power key, if one is configured.
func (m *Modem) PowerOn(ctx context.Context) error {
	if m.config.PowerKey == nil {
		return nil
	}
	return m.config.PowerKey.Pulse(ctx, powerOnPulse)
}

// Pause blocks for d on the driver's clock.
func (m *Modem) Pause(d time.Duration) {
	m.engine.clock.Sleep(d)
}

// Reset discards everything buffered from the module, for use after the
// link was lost.
func (m *Modem) Reset() {
	m.backlog.Reset()
	m.mu.Lock()
	m.model = ""
	m.mu.Unlock()
}

// Close releases the transport. A second call returns ErrAlreadyClosed.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true

	var err error
	if m.transport != nil {
		err = m.transport.Close()
	}
	if n := m.backlog.Len(); n > 0 {
		m.logger.Debug("closing with undispatched backlog", "bytes", n)
	}
	return err
}

// SendCommandWithResponse runs one transaction. Errors wrap one of the
// transaction sentinels; see StatusOf.
func (m *Modem) SendCommandWithResponse(ctx context.Context, cmd Command) (string, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return "", ErrAlreadyClosed
	}
	if m.transport == nil {
		return "", ErrNotInitialized
	}
	return m.engine.transact(ctx, cmd)
}

// exec sends text as an AT command with the default terminator and timeout.
func (m *Modem) exec(ctx context.Context, text string) (string, error) {
	return m.SendCommandWithResponse(ctx, Command{Text: text})
}

func (m *Modem) expectOK(ctx context.Context, text string) error {
	_, err := m.exec(ctx, text)
	return err
}

// query runs text and returns the payload of the first line starting with
// prefix, with the prefix and surrounding spaces removed.
func (m *Modem) query(ctx context.Context, text, prefix string) (string, error) {
	resp, err := m.exec(ctx, text)
	if err != nil {
		return "", err
	}
	v, ok := findLine(resp, prefix)
	if !ok {
		return "", &CommandError{Command: at.Escape + text, Code: -1, Err: fmt.Errorf("%w: no %q line", ErrUnexpectedResponse, prefix)}
	}
	return v, nil
}

// findLine returns the payload of the first line of resp starting with
// prefix. An empty prefix selects the first information line.
func findLine(resp, prefix string) (string, bool) {
	lines, tail := at.Lines([]byte(resp))
	if len(tail) > 0 {
		lines = append(lines, string(tail))
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line == at.OK || strings.HasPrefix(line, at.Escape) || at.IsURC(line) {
			continue
		}
		if prefix == "" {
			return line, true
		}
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	return "", false
}

// AT sends the bare attention command.
func (m *Modem) AT(ctx context.Context) error {
	return m.expectOK(ctx, at.CmdAt)
}

func (m *Modem) EnableEcho(ctx context.Context, on bool) error {
	if on {
		return m.expectOK(ctx, at.CmdEchoOn)
	}
	return m.expectOK(ctx, at.CmdEchoOff)
}

// SetFlowControl switches RTS/CTS on the module and on the transport.
func (m *Modem) SetFlowControl(ctx context.Context, on bool) error {
	cmd := at.CmdFlowControlOff
	if on {
		cmd = at.CmdFlowControlOn
	}
	if err := m.expectOK(ctx, cmd); err != nil {
		return err
	}
	return m.transport.SetFlowControl(on)
}

// SetBaud switches the module and then the transport to baud.
func (m *Modem) SetBaud(ctx context.Context, baud int) error {
	if !validBaud(baud) {
		return &CommandError{Command: at.Escape + at.CmdBaudRate, Code: -1, Err: ErrUnexpectedParam}
	}
	if err := m.expectOK(ctx, fmt.Sprintf("%s%d", at.CmdBaudRate, baud)); err != nil {
		return err
	}
	m.Pause(autobaudSettle)
	return m.transport.SetBaudRate(baud)
}

func validBaud(baud int) bool {
	switch baud {
	case 9600, 19200, 38400, 57600, 115200, 230400, 460800:
		return true
	}
	return false
}

func (m *Modem) ManufacturerID(ctx context.Context) (string, error) {
	return m.query(ctx, at.CmdManufacturer, "")
}

// ModelID returns the module model, e.g. "SARA-R510M8S".
func (m *Modem) ModelID(ctx context.Context) (string, error) {
	model, err := m.query(ctx, at.CmdModel, "")
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.model = model
	m.mu.Unlock()
	return model, nil
}

func (m *Modem) FirmwareVersion(ctx context.Context) (string, error) {
	return m.query(ctx, at.CmdFirmware, "")
}

func (m *Modem) IMEI(ctx context.Context) (string, error) {
	return m.query(ctx, at.CmdIMEI, "")
}

func (m *Modem) IMSI(ctx context.Context) (string, error) {
	return m.query(ctx, at.CmdIMSI, "")
}

func (m *Modem) CCID(ctx context.Context) (string, error) {
	return m.query(ctx, at.CmdCCID, at.RespCCID)
}

// SubscriberNumber returns the MSISDN from +CNUM, or an empty string when
// the SIM does not store one.
func (m *Modem) SubscriberNumber(ctx context.Context) (string, error) {
	resp, err := m.exec(ctx, at.CmdSubscriber)
	if err != nil {
		return "", err
	}
	v, ok := findLine(resp, at.RespSubscriber)
	if !ok {
		return "", nil
	}
	fields := splitFields(v)
	if len(fields) < 2 {
		return "", nil
	}
	return fields[1], nil
}

// Model returns the model read by the last ModelID call.
func (m *Modem) Model() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// splitFields splits a comma separated response payload, honouring quotes
// and removing them.
func splitFields(s string) []string {
	var (
		fields []string
		cur    strings.Builder
		quoted bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, strings.TrimSpace(cur.String()))
}

// isProtocol reports whether err is an explicit modem error answer.
func isProtocol(err error) bool {
	return errors.Is(err, ErrProtocol)
}
