package modem

import (
	"log/slog"
	"sync"

	"i4.energy/across/assistnow/at"
)

// EventKind identifies one class of unsolicited result code.
type EventKind int

// Kinds in dispatch priority order.
const (
	EventSocketData EventKind = iota
	EventSocketListen
	EventSocketClosed
	EventLocation
	EventSIMState
	EventPSDAction
	EventPing
	EventHTTPResult
	EventMQTTResult
	EventRegistration
)

var eventNames = [...]string{
	EventSocketData:   "socket data",
	EventSocketListen: "socket listen",
	EventSocketClosed: "socket closed",
	EventLocation:     "location",
	EventSIMState:     "SIM state",
	EventPSDAction:    "PSD action",
	EventPing:         "ping",
	EventHTTPResult:   "HTTP result",
	EventMQTTResult:   "MQTT result",
	EventRegistration: "registration",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// route parses one URC shape into its typed event.
type route struct {
	kind  EventKind
	parse func(line string) (any, bool)
}

func parser[T any](fn func(string) (T, bool)) func(string) (any, bool) {
	return func(line string) (any, bool) {
		return fn(line)
	}
}

var routes = []route{
	{EventSocketData, parser(at.ParseSocketData)},
	{EventSocketListen, parser(at.ParseSocketListen)},
	{EventSocketClosed, parser(at.ParseSocketClosed)},
	{EventLocation, parser(at.ParseLocation)},
	{EventSIMState, parser(at.ParseSIMState)},
	{EventPSDAction, parser(at.ParsePSDAction)},
	{EventPing, parser(at.ParsePing)},
	{EventHTTPResult, parser(at.ParseHTTPResult)},
	{EventMQTTResult, parser(at.ParseMQTTResult)},
	{EventRegistration, parser(at.ParseRegistration)},
}

// demux owns at most one handler per event kind.
type demux struct {
	mu       sync.RWMutex
	handlers map[EventKind]func(any)
	logger   *slog.Logger
}

func newDemux(logger *slog.Logger) *demux {
	return &demux{handlers: make(map[EventKind]func(any)), logger: logger}
}

func (d *demux) set(kind EventKind, fn func(any)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fn == nil {
		delete(d.handlers, kind)
		return
	}
	d.handlers[kind] = fn
}

func handle[T any](d *demux, kind EventKind, fn func(T)) {
	if fn == nil {
		d.set(kind, nil)
		return
	}
	d.set(kind, func(ev any) { fn(ev.(T)) })
}

// dispatch runs the handler of the first route that parses line. It
// reports whether a handler ran. The handler is called without locks held.
func (d *demux) dispatch(line string) bool {
	for _, r := range routes {
		ev, ok := r.parse(line)
		if !ok {
			continue
		}
		d.mu.RLock()
		fn := d.handlers[r.kind]
		d.mu.RUnlock()
		if fn == nil {
			d.logger.Debug("no handler for URC", "kind", r.kind, "line", line)
			return false
		}
		fn(ev)
		return true
	}
	return false
}

// OnSocketData sets the handler for +UUSORD and +UUSORF. A nil fn removes it.
func (m *Modem) OnSocketData(fn func(at.SocketData)) { handle(m.demux, EventSocketData, fn) }

func (m *Modem) OnSocketListen(fn func(at.SocketListen)) { handle(m.demux, EventSocketListen, fn) }

func (m *Modem) OnSocketClosed(fn func(at.SocketClosed)) { handle(m.demux, EventSocketClosed, fn) }

func (m *Modem) OnLocation(fn func(at.LocationFix)) { handle(m.demux, EventLocation, fn) }

func (m *Modem) OnSIMState(fn func(at.SIMState)) { handle(m.demux, EventSIMState, fn) }

func (m *Modem) OnPSDAction(fn func(at.PSDAction)) { handle(m.demux, EventPSDAction, fn) }

func (m *Modem) OnPing(fn func(at.PingResult)) { handle(m.demux, EventPing, fn) }

func (m *Modem) OnHTTPResult(fn func(at.HTTPResult)) { handle(m.demux, EventHTTPResult, fn) }

func (m *Modem) OnMQTTResult(fn func(at.MQTTResult)) { handle(m.demux, EventMQTTResult, fn) }

// OnRegistration receives both +CREG and +CEREG notifications.
func (m *Modem) OnRegistration(fn func(at.Registration)) { handle(m.demux, EventRegistration, fn) }

// ProcessBacklog dispatches every complete line in the backlog to its
// handler and reports whether any handler ran. Lines that match no URC are
// logged and dropped; each line is dispatched at most once.
//
// Handlers run on the caller's goroutine and may issue commands.
func (m *Modem) ProcessBacklog() bool {
	if err := m.engine.poll(); err != nil {
		m.logger.Warn("poll transport", "error", err)
	}

	lines := m.backlog.TakeLines()
	handled := false
	for _, line := range lines {
		if line == "" {
			continue
		}
		if m.demux.dispatch(line) {
			handled = true
			continue
		}
		if !at.IsURC(line) {
			m.logger.Debug("discarding unsolicited line", "line", line)
		}
	}

	m.backlog.Prune(at.IsURC)
	return handled
}
