package modem_test

import (
	"context"
	"testing"
	"time"

	"i4.energy/across/assistnow/modem"
)

// newScriptedModem builds a Modem over tr with a short AT timeout.
func newScriptedModem(t *testing.T, tr *modem.ScriptedTransport) *modem.Modem {
	t.Helper()

	cfg, err := modem.NewConfigBuilder().
		WithDialer(modem.ScriptedDialer{Transport: tr}).
		WithATTimeout(50 * time.Millisecond).
		WithMaxInitAttempts(1).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	m, err := modem.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// concat joins call lists into a new slice (slices.Concat needs Go 1.22).
func concat(lists ...[]any) []any {
	var out []any
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
