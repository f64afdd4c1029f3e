package modem

import (
	"context"
	"io"
	"strings"
	"sync"
)

// ScriptedTransport is an in-memory Transport that answers written
// commands from a script. It never blocks, like the serial transport.
// Exported for use in tests of this and dependent packages.
//
// Rules are matched against the written bytes with the trailing carriage
// return removed. The most recently added matching rule wins, so a test can
// install a catch-all first and override single commands afterwards.
type ScriptedTransport struct {
	mu     sync.Mutex
	rx     []byte
	writes []string
	rules  []*scriptRule
	baud   int
	flow   bool
	closed bool
}

type scriptRule struct {
	prefix string
	reply  func(cmd string) string
	once   bool
	used   bool
}

// NewScriptedTransport creates a transport with no rules. Unmatched writes
// get no answer.
func NewScriptedTransport() *ScriptedTransport {
	return &ScriptedTransport{baud: DefaultBaudRate}
}

// Reply answers every write starting with prefix.
func (t *ScriptedTransport) Reply(prefix, response string) *ScriptedTransport {
	return t.add(prefix, func(string) string { return response }, false)
}

// ReplyOnce answers the next write starting with prefix, then stops matching.
func (t *ScriptedTransport) ReplyOnce(prefix, response string) *ScriptedTransport {
	return t.add(prefix, func(string) string { return response }, true)
}

// ReplyFunc answers writes starting with prefix with the result of fn.
func (t *ScriptedTransport) ReplyFunc(prefix string, fn func(cmd string) string) *ScriptedTransport {
	return t.add(prefix, fn, false)
}

func (t *ScriptedTransport) add(prefix string, fn func(string) string, once bool) *ScriptedTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules = append(t.rules, &scriptRule{prefix: prefix, reply: fn, once: once})
	return t
}

// Inject queues unsolicited bytes, as if the module had sent them.
func (t *ScriptedTransport) Inject(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = append(t.rx, data...)
}

// Writes returns every write in order, carriage returns included.
func (t *ScriptedTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Count returns how many writes started with prefix.
func (t *ScriptedTransport) Count(prefix string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, w := range t.writes {
		if strings.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}

func (t *ScriptedTransport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baud
}

func (t *ScriptedTransport) FlowControl() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flow
}

func (t *ScriptedTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *ScriptedTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	cmd := string(p)
	t.writes = append(t.writes, cmd)
	cmd = strings.TrimSuffix(cmd, "\r")

	for i := len(t.rules) - 1; i >= 0; i-- {
		r := t.rules[i]
		if r.used || !strings.HasPrefix(cmd, r.prefix) {
			continue
		}
		if r.once {
			r.used = true
		}
		t.rx = append(t.rx, r.reply(cmd)...)
		break
	}
	return len(p), nil
}

func (t *ScriptedTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.rx) == 0 {
		if t.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(p, t.rx)
	t.rx = t.rx[n:]
	return n, nil
}

func (t *ScriptedTransport) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rx)
}

func (t *ScriptedTransport) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baud = baud
	return nil
}

func (t *ScriptedTransport) SetFlowControl(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flow = enabled
	return nil
}

func (t *ScriptedTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// ScriptedDialer hands out a fixed transport.
type ScriptedDialer struct {
	Transport Transport
}

func (d ScriptedDialer) Dial(context.Context) (Transport, error) {
	return d.Transport, nil
}
