package lte

import (
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"i4.energy/across/assistnow/board"
	"i4.energy/across/assistnow/modem"
)

const (
	DefaultBroker     = "pp.services.u-blox.com"
	DefaultBrokerPort = 8883
	// DefaultMNOProfile is the global profile the modules ship with.
	DefaultMNOProfile = 90
	// DefaultMaxMessageSize covers the largest message on the MGA topic.
	DefaultMaxMessageSize = 9 * 1024
)

// Security manager slots the credentials are imported into.
const (
	RootCASlot     = "aws-rootCA"
	ClientCertSlot = "pp-cert"
	ClientKeySlot  = "pp-key"
)

// DefaultTopics are subscribed when Config.Topics is nil.
var DefaultTopics = []string{"/pp/ubx/mga"}

// Config holds the state machine settings. Zero values are replaced by
// the defaults noted on each field.
type Config struct {
	// DetectRetry is the wait between detection attempts (5s).
	DetectRetry time.Duration
	// CheckSimRetry is the wait between SIM checks (60s).
	CheckSimRetry time.Duration
	// Retry is the default re-check interval (1s).
	Retry time.Duration
	// ActivationRetry is the wait between PDP activation attempts (10s).
	ActivationRetry time.Duration
	// ConnectRetry is the wait between broker connection attempts (10s).
	ConnectRetry time.Duration
	// MQTTCommandDelay spaces MQTT commands after a confirmation (100ms).
	MQTTCommandDelay time.Duration
	// TickInterval is the period of Run (30ms).
	TickInterval time.Duration
	// SimReadyWait bounds the wait for the SIM after detection (4s).
	SimReadyWait time.Duration
	// PowerOnWait is the quiet time after a power key pulse (4s).
	PowerOnWait time.Duration

	// APN, when set, is defined on context 1 during the SIM check.
	APN string
	// PDPType overrides the protocol of the context found during
	// activation unless it is PDPIPv4.
	PDPType modem.PDPType
	// MNOProfile is selected during the SIM check. 0 means the default,
	// a negative value leaves the module's profile alone.
	MNOProfile      int
	PSDProfile      int
	SecurityProfile int

	Broker     string
	BrokerPort int
	// ClientID identifies the device to the broker. Without one the
	// machine stays Online and does not connect.
	ClientID   string
	RootCA     []byte
	ClientCert []byte
	ClientKey  []byte
	// Topics is the initial desired topic set.
	Topics []string
	// MaxMessageSize rejects larger MQTT messages.
	MaxMessageSize int

	// Sink receives validated UBX frames. When nil, frames go to the
	// module's internal receiver if it has one.
	Sink io.Writer
	// Sense reports the module power; nil means always on.
	Sense  board.Sense
	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	durations := []struct {
		v *time.Duration
		d time.Duration
	}{
		{&c.DetectRetry, 5 * time.Second},
		{&c.CheckSimRetry, time.Minute},
		{&c.Retry, time.Second},
		{&c.ActivationRetry, 10 * time.Second},
		{&c.ConnectRetry, 10 * time.Second},
		{&c.MQTTCommandDelay, 100 * time.Millisecond},
		{&c.TickInterval, 30 * time.Millisecond},
		{&c.SimReadyWait, 4 * time.Second},
		{&c.PowerOnWait, 4 * time.Second},
	}
	for _, d := range durations {
		if *d.v == 0 {
			*d.v = d.d
		}
	}
	if c.MNOProfile == 0 {
		c.MNOProfile = DefaultMNOProfile
	}
	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if c.BrokerPort == 0 {
		c.BrokerPort = DefaultBrokerPort
	}
	if c.Topics == nil {
		c.Topics = DefaultTopics
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
