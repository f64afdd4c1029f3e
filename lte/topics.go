package lte

import (
	"errors"
	"slices"
)

var (
	// ErrNoPending is returned for a confirmation that matches no request.
	ErrNoPending = errors.New("confirmation without pending request")
	// ErrNotSubscribed is returned when an unsubscribe confirmation names
	// a topic that was never subscribed.
	ErrNotSubscribed = errors.New("topic not subscribed")
)

type ActionKind int

const (
	NoAction ActionKind = iota
	Subscribe
	Unsubscribe
)

func (k ActionKind) String() string {
	switch k {
	case Subscribe:
		return "subscribe"
	case Unsubscribe:
		return "unsubscribe"
	default:
		return "none"
	}
}

// Action is the next request needed to reconcile the topic set.
type Action struct {
	Kind  ActionKind
	Topic string
}

// TopicSet tracks the subscribed topics and the one request the module
// may have in flight. The module cannot process two subscription changes
// at once, so Next returns nothing while a request is pending.
type TopicSet struct {
	actual       []string
	pendingSub   string
	pendingUnsub string
}

// Busy reports whether a subscribe or unsubscribe awaits confirmation.
func (t *TopicSet) Busy() bool {
	return t.pendingSub != "" || t.pendingUnsub != ""
}

// Next returns one action bringing the set closer to desired: subscribe
// the first missing topic, otherwise unsubscribe the first extra one.
func (t *TopicSet) Next(desired []string) Action {
	if t.Busy() {
		return Action{}
	}
	for _, topic := range desired {
		if !slices.Contains(t.actual, topic) {
			return Action{Kind: Subscribe, Topic: topic}
		}
	}
	for _, topic := range t.actual {
		if !slices.Contains(desired, topic) {
			return Action{Kind: Unsubscribe, Topic: topic}
		}
	}
	return Action{}
}

// Request records a that was accepted by the module.
func (t *TopicSet) Request(a Action) {
	switch a.Kind {
	case Subscribe:
		t.pendingSub = a.Topic
	case Unsubscribe:
		t.pendingUnsub = a.Topic
	}
}

// Subscribed moves the pending subscribe into the set.
func (t *TopicSet) Subscribed() (string, error) {
	topic := t.pendingSub
	if topic == "" {
		return "", ErrNoPending
	}
	t.pendingSub = ""
	if !slices.Contains(t.actual, topic) {
		t.actual = append(t.actual, topic)
	}
	return topic, nil
}

// Unsubscribed removes the pending unsubscribe from the set. The request
// is cleared even when the topic was not in the set.
func (t *TopicSet) Unsubscribed() (string, error) {
	topic := t.pendingUnsub
	if topic == "" {
		return "", ErrNoPending
	}
	t.pendingUnsub = ""
	i := slices.Index(t.actual, topic)
	if i < 0 {
		return topic, ErrNotSubscribed
	}
	t.actual = slices.Delete(t.actual, i, i+1)
	return topic, nil
}

// Abandon drops the pending request after the module reported a failure.
func (t *TopicSet) Abandon(kind ActionKind) string {
	var topic string
	switch kind {
	case Subscribe:
		topic, t.pendingSub = t.pendingSub, ""
	case Unsubscribe:
		topic, t.pendingUnsub = t.pendingUnsub, ""
	}
	return topic
}

func (t *TopicSet) Has(topic string) bool {
	return slices.Contains(t.actual, topic)
}

// Clear forgets every topic and request, after a new session started.
func (t *TopicSet) Clear() {
	t.actual = nil
	t.pendingSub = ""
	t.pendingUnsub = ""
}

func (t *TopicSet) Actual() []string {
	return slices.Clone(t.actual)
}

// Pending returns the topic awaiting confirmation, if any.
func (t *TopicSet) Pending() Action {
	switch {
	case t.pendingSub != "":
		return Action{Kind: Subscribe, Topic: t.pendingSub}
	case t.pendingUnsub != "":
		return Action{Kind: Unsubscribe, Topic: t.pendingUnsub}
	}
	return Action{}
}
