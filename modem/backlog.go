package modem

import (
	"bytes"
	"sync"

	"i4.energy/across/assistnow/at"
)

// Backlog holds bytes received from the module that have not been
// dispatched yet. Every byte the engine reads is appended here, whether or
// not it belongs to the response being awaited.
//
// All access goes through one mutex. Appends happen on every receive;
// truncation only happens in TakeLines and Prune.
type Backlog struct {
	mu      sync.Mutex
	buf     []byte
	limit   int
	dropped int
}

func NewBacklog(limit int) *Backlog {
	return &Backlog{limit: limit, buf: make([]byte, 0, limit)}
}

// Write appends p, dropping the oldest bytes when the limit is exceeded.
func (b *Backlog) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	b.trim()
	return len(p), nil
}

func (b *Backlog) WriteByte(c byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, c)
	b.trim()
	return nil
}

func (b *Backlog) trim() {
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.dropped += over
	}
}

// TakeLines removes and returns the complete lines. A trailing partial
// line stays in place, so bytes appended later continue it.
func (b *Backlog) TakeLines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines, tail := at.Lines(b.buf)
	b.buf = append(b.buf[:0], tail...)
	return lines
}

// Prune keeps only complete lines accepted by keep, plus a trailing
// partial line. Empty lines are removed.
func (b *Backlog) Prune(keep func(line string) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines, tail := at.Lines(b.buf)
	var out []byte
	for _, line := range lines {
		if line != "" && keep(line) {
			out = append(out, line...)
			out = append(out, at.CRLF...)
		}
	}
	out = append(out, tail...)
	b.buf = append(b.buf[:0], out...)
}

func (b *Backlog) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf)
}

func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Dropped returns and clears the number of bytes lost to overflow.
func (b *Backlog) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.dropped
	b.dropped = 0
	return n
}

func (b *Backlog) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = b.buf[:0]
	b.dropped = 0
}
