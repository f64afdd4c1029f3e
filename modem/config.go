package modem

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"i4.energy/across/assistnow/board"
)

const (
	defaultATTimeout       = time.Second
	defaultBacklogSize     = 2056
	defaultMaxInitAttempts = 9
	defaultPollDelay       = time.Millisecond
)

// AutobaudRates is the order in which line speeds are tried when the module
// does not answer at the configured rate.
var AutobaudRates = []int{115200, 9600, 19200, 38400, 57600, 230400}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds the modem driver settings. Use NewConfigBuilder to get one
// with defaults applied and validated.
type Config struct {
	// Dialer opens the transport.
	Dialer Dialer
	// SimPIN is submitted when the SIM reports "SIM PIN".
	SimPIN string
	// BaudRate is the line speed the module is switched to during Begin.
	BaudRate int `validate:"oneof=9600 19200 38400 57600 115200 230400 460800"`
	// FlowControl enables RTS/CTS on both ends during Begin.
	FlowControl bool
	// ATTimeout is the default per-command response timeout.
	ATTimeout time.Duration `validate:"gt=0"`
	// BacklogSize bounds the unsolicited byte backlog.
	BacklogSize int `validate:"gte=256,lte=65536"`
	// MaxInitAttempts bounds the standard/autobaud/reset loop in Begin.
	MaxInitAttempts int `validate:"gte=1,lte=32"`
	// PowerKey, when set, is pulsed to switch the module on during a reset.
	PowerKey board.PowerKey
	// Logger receives driver logs; nil means slog.Default().
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ATTimeout == 0 {
		c.ATTimeout = defaultATTimeout
	}
	if c.BacklogSize == 0 {
		c.BacklogSize = defaultBacklogSize
	}
	if c.MaxInitAttempts == 0 {
		c.MaxInitAttempts = defaultMaxInitAttempts
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid modem config: %w", err)
	}
	return nil
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.config.SimPIN = pin
	return b
}

func (b *ConfigBuilder) WithBaudRate(baud int) *ConfigBuilder {
	b.config.BaudRate = baud
	return b
}

func (b *ConfigBuilder) WithFlowControl(enabled bool) *ConfigBuilder {
	b.config.FlowControl = enabled
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithBacklogSize(n int) *ConfigBuilder {
	b.config.BacklogSize = n
	return b
}

func (b *ConfigBuilder) WithMaxInitAttempts(n int) *ConfigBuilder {
	b.config.MaxInitAttempts = n
	return b
}

func (b *ConfigBuilder) WithPowerKey(k board.PowerKey) *ConfigBuilder {
	b.config.PowerKey = k
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

// Build applies defaults and validates the result.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
