package lte_test

import (
	"errors"
	"testing"

	"i4.energy/across/assistnow/lte"
)

func TestTopicSetNext(t *testing.T) {
	tests := []struct {
		name    string
		actual  []string
		desired []string
		want    lte.Action
	}{
		{"Empty set subscribes the first topic", nil, []string{"a", "b"}, lte.Action{Kind: lte.Subscribe, Topic: "a"}},
		{"Missing topics before extra ones", []string{"x"}, []string{"a"}, lte.Action{Kind: lte.Subscribe, Topic: "a"}},
		{"Extra topic is unsubscribed", []string{"a", "x"}, []string{"a"}, lte.Action{Kind: lte.Unsubscribe, Topic: "x"}},
		{"Converged set needs nothing", []string{"a", "b"}, []string{"b", "a"}, lte.Action{}},
		{"Empty desired set drains", []string{"a"}, nil, lte.Action{Kind: lte.Unsubscribe, Topic: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts lte.TopicSet
			for _, topic := range tt.actual {
				ts.Request(lte.Action{Kind: lte.Subscribe, Topic: topic})
				if _, err := ts.Subscribed(); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if got := ts.Next(tt.desired); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestTopicSetRequests(t *testing.T) {
	t.Run("Pending request blocks further actions", func(t *testing.T) {
		var ts lte.TopicSet
		ts.Request(lte.Action{Kind: lte.Subscribe, Topic: "a"})
		if !ts.Busy() {
			t.Fatal("expected busy set")
		}
		if got := ts.Next([]string{"a", "b"}); got.Kind != lte.NoAction {
			t.Errorf("expected no action, got %+v", got)
		}
		if got := ts.Pending(); got.Topic != "a" || got.Kind != lte.Subscribe {
			t.Errorf("unexpected pending request %+v", got)
		}
	})

	t.Run("Confirmation moves the topic into the set", func(t *testing.T) {
		var ts lte.TopicSet
		ts.Request(lte.Action{Kind: lte.Subscribe, Topic: "a"})
		topic, err := ts.Subscribed()
		if err != nil || topic != "a" {
			t.Fatalf("expected topic a, got %q %v", topic, err)
		}
		if !ts.Has("a") || ts.Busy() {
			t.Errorf("unexpected set %v busy=%v", ts.Actual(), ts.Busy())
		}
		if got := ts.Pending(); got.Kind != lte.NoAction {
			t.Errorf("expected nothing pending, got %+v", got)
		}
	})

	t.Run("Confirmation without request", func(t *testing.T) {
		var ts lte.TopicSet
		if _, err := ts.Subscribed(); !errors.Is(err, lte.ErrNoPending) {
			t.Errorf("expected ErrNoPending, got %v", err)
		}
		if _, err := ts.Unsubscribed(); !errors.Is(err, lte.ErrNoPending) {
			t.Errorf("expected ErrNoPending, got %v", err)
		}
	})

	t.Run("Unsubscribe of an unknown topic clears the request", func(t *testing.T) {
		var ts lte.TopicSet
		ts.Request(lte.Action{Kind: lte.Unsubscribe, Topic: "x"})
		topic, err := ts.Unsubscribed()
		if !errors.Is(err, lte.ErrNotSubscribed) || topic != "x" {
			t.Errorf("expected ErrNotSubscribed for x, got %q %v", topic, err)
		}
		if ts.Busy() {
			t.Error("expected request to be cleared")
		}
	})

	t.Run("Unsubscribe removes the topic", func(t *testing.T) {
		var ts lte.TopicSet
		for _, topic := range []string{"a", "b"} {
			ts.Request(lte.Action{Kind: lte.Subscribe, Topic: topic})
			ts.Subscribed()
		}
		ts.Request(lte.Action{Kind: lte.Unsubscribe, Topic: "a"})
		if _, err := ts.Unsubscribed(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := ts.Actual(); len(got) != 1 || got[0] != "b" {
			t.Errorf("expected [b], got %v", got)
		}
	})

	t.Run("Abandoned request is retried", func(t *testing.T) {
		var ts lte.TopicSet
		ts.Request(lte.Action{Kind: lte.Subscribe, Topic: "a"})
		if got := ts.Abandon(lte.Unsubscribe); got != "" {
			t.Errorf("expected no unsubscribe to abandon, got %q", got)
		}
		if got := ts.Abandon(lte.Subscribe); got != "a" {
			t.Errorf("expected a, got %q", got)
		}
		if got := ts.Next([]string{"a"}); got != (lte.Action{Kind: lte.Subscribe, Topic: "a"}) {
			t.Errorf("expected a retry, got %+v", got)
		}
	})

	t.Run("Clear forgets topics and requests", func(t *testing.T) {
		var ts lte.TopicSet
		ts.Request(lte.Action{Kind: lte.Subscribe, Topic: "a"})
		ts.Subscribed()
		ts.Request(lte.Action{Kind: lte.Unsubscribe, Topic: "a"})
		ts.Clear()
		if ts.Busy() || len(ts.Actual()) != 0 {
			t.Errorf("expected empty set, got %v busy=%v", ts.Actual(), ts.Busy())
		}
	})
}
