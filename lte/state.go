package lte

import "fmt"

// State is the provisioning state of the modem. The machine has no final
// state; it returns to Init whenever the module is lost.
type State int

const (
	Init State = iota
	CheckSim
	// SimReady is reserved; the machine goes from CheckSim straight to
	// WaitRegister.
	SimReady
	WaitRegister
	Registered
	Online
	MqttSession
	// Ntrip is reserved for a correction stream session.
	Ntrip
)

var stateNames = [...]string{
	Init:         "init",
	CheckSim:     "check sim",
	SimReady:     "sim ready",
	WaitRegister: "wait register",
	Registered:   "registered",
	Online:       "online",
	MqttSession:  "mqtt",
	Ntrip:        "ntrip",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
