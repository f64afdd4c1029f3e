// Package lte provisions an LTE module step by step, from detection to an
// MQTT session that feeds GNSS assistance data to a receiver.
package lte

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"i4.energy/across/assistnow/at"
	"i4.energy/across/assistnow/modem"
	"i4.energy/across/assistnow/ubx"
)

// family groups the module models that need different activation and
// MQTT handling.
type family int

const (
	saraR5 family = iota
	laraR6
	lenaR8
)

func familyOf(model string) family {
	switch {
	case strings.HasPrefix(model, "LARA-R6"):
		return laraR6
	case strings.HasPrefix(model, "LENA-R8"):
		return lenaR8
	default:
		return saraR5
	}
}

// Machine drives one modem through the provisioning states. Tick and the
// URC handlers run on one goroutine; State, Status, SetTopics and
// SetClientID may be called from others.
type Machine struct {
	modem    *modem.Modem
	config   Config
	clock    clock.Clock
	logger   *slog.Logger
	injector ubx.Injector

	mu       sync.Mutex
	state    State
	nextTry  time.Time
	model    string
	firmware string
	clientID string
	desired  []string
	topics   TopicSet
	// msgs is the unread message count announced by the module
	msgs  int
	stats ubx.Result
}

// Status is a snapshot of the machine for reporting.
type Status struct {
	State      State    `json:"state"`
	Model      string   `json:"model,omitempty"`
	Firmware   string   `json:"firmware,omitempty"`
	ClientID   string   `json:"clientId,omitempty"`
	Desired    []string `json:"desired"`
	Subscribed []string `json:"subscribed"`
	Pending    string   `json:"pending,omitempty"`
	Messages   int      `json:"pendingMessages"`
	Frames     int      `json:"frames"`
	Bytes      int      `json:"bytes"`
	Rejected   int      `json:"rejected"`
	Failed     int      `json:"failed"`
}

// New creates a machine in Init and registers its URC handlers on m.
func New(m *modem.Modem, config Config) *Machine {
	config.setDefaults()
	mc := &Machine{
		modem:    m,
		config:   config,
		clock:    config.Clock,
		logger:   config.Logger,
		injector: ubx.Injector{Class: ubx.ClassMGA, Logger: config.Logger},
		clientID: config.ClientID,
		desired:  slices.Clone(config.Topics),
	}
	m.OnRegistration(mc.onRegistration)
	m.OnPSDAction(mc.onPSDAction)
	m.OnMQTTResult(mc.onMQTT)
	return mc
}

// Run ticks the machine until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	ticker := m.clock.Ticker(m.config.TickInterval)
	defer ticker.Stop()

	m.logger.Info("LTE state machine started", "tick", m.config.TickInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick dispatches pending URCs and, once the current state's retry time
// has passed, runs the state's action.
func (m *Machine) Tick(ctx context.Context) {
	if state := m.State(); state != Init {
		if !m.moduleOn() {
			m.logger.Warn("module switched off", "state", state)
			m.modem.Reset()
			m.setState(Init, m.config.DetectRetry)
			return
		}
		m.modem.ProcessBacklog()
	}

	now := m.clock.Now()
	m.mu.Lock()
	if now.Before(m.nextTry) {
		m.mu.Unlock()
		return
	}
	m.nextTry = now.Add(m.config.Retry)
	state := m.state
	m.mu.Unlock()

	switch state {
	case Init:
		m.schedule(now, m.config.DetectRetry)
		if m.detect(ctx) {
			m.setState(CheckSim, 0)
		}
	case CheckSim:
		m.schedule(now, m.config.CheckSimRetry)
		if m.initSIM(ctx) {
			m.setState(WaitRegister, 0)
		}
	case WaitRegister:
		if m.registered(ctx) {
			m.setState(Registered, 0)
		}
	case Registered:
		m.schedule(now, m.config.ActivationRetry)
		if m.activate(ctx) {
			m.setState(Online, 0)
		}
	case Online:
		m.schedule(now, m.config.ConnectRetry)
		m.connect(ctx)
	case MqttSession:
		if m.ClientID() == "" {
			if m.stopMQTT(ctx) {
				m.setState(Online, 0)
			}
			return
		}
		m.mqttTask(ctx)
	default:
		m.setState(Init, 0)
	}
}

func (m *Machine) moduleOn() bool {
	return m.config.Sense == nil || m.config.Sense.ModuleOn()
}

func (m *Machine) schedule(now time.Time, d time.Duration) {
	m.mu.Lock()
	m.nextTry = now.Add(d)
	m.mu.Unlock()
}

// setState moves to s and schedules the next action after delay.
func (m *Machine) setState(s State, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStateLocked(s, delay)
}

func (m *Machine) setStateLocked(s State, delay time.Duration) {
	if m.state != s {
		m.logger.Info("state change", "from", m.state, "state", s)
		m.state = s
	}
	m.nextTry = m.clock.Now().Add(delay)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) ClientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientID
}

// SetClientID changes the broker client id. An empty id ends the MQTT
// session on the next tick.
func (m *Machine) SetClientID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientID = id
}

// SetTopics replaces the desired topic set. The session reconciles one
// topic per tick.
func (m *Machine) SetTopics(topics []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.desired = slices.Clone(topics)
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:      m.state,
		Model:      m.model,
		Firmware:   m.firmware,
		ClientID:   m.clientID,
		Desired:    slices.Clone(m.desired),
		Subscribed: m.topics.Actual(),
		Pending:    m.topics.Pending().Topic,
		Messages:   m.msgs,
		Frames:     m.stats.Frames,
		Bytes:      m.stats.Bytes,
		Rejected:   m.stats.Rejected,
		Failed:     m.stats.Failed,
	}
}

func (m *Machine) family() family {
	m.mu.Lock()
	defer m.mu.Unlock()
	return familyOf(m.model)
}

// sink picks the destination of assistance frames.
func (m *Machine) sink() io.Writer {
	if m.config.Sink != nil {
		return m.config.Sink
	}
	if m.modem.HasInternalGNSS() {
		return modem.UBXWriter{Modem: m.modem}
	}
	return nil
}

func (m *Machine) onRegistration(ev at.Registration) {
	m.logger.Debug("registration", "status", ev.Status.String(), "eps", ev.EPS,
		"area", ev.Area, "cell", ev.CellID, "act", ev.AcT)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case ev.Status.Registered() && m.state == WaitRegister:
		m.setStateLocked(Registered, 0)
	case ev.Status == at.RegSearching && m.state >= Registered:
		m.setStateLocked(WaitRegister, 0)
	}
}

func (m *Machine) onPSDAction(ev at.PSDAction) {
	m.logger.Debug("PSD action", "result", ev.Result, "ip", ev.IP)
	if ev.Result != 0 {
		m.logger.Warn("PSD activation failed", "result", ev.Result)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Registered {
		m.setStateLocked(Online, 0)
	}
}

// logStepError logs a failed sequence once with its step number.
func (m *Machine) logStepError(err error) {
	var se *StepError
	if !errors.As(err, &se) {
		m.logger.Error("AT sequence failed", "error", err)
		return
	}
	m.logger.Error(se.Sequence+" failed", "step", se.Step,
		"status", modem.StatusOf(se.Err).String(), "code", modem.ErrorCode(se.Err), "error", se.Err)
}
