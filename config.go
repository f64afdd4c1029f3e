package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"i4.energy/across/assistnow/lte"
)

const envPrefix = "ASSISTNOW_"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the status server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address" validate:"required"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port" validate:"required"`
	// BaudRate is the line speed the modem is switched to (e.g. 115200)
	BaudRate int `yaml:"baud_rate" validate:"oneof=9600 19200 38400 57600 115200 230400 460800"`
	// FlowControl enables RTS/CTS on the modem line
	FlowControl bool `yaml:"flow_control"`

	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	// LogFile, when set, receives the JSON log through a rotating writer
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb" validate:"gte=0"`
	LogMaxBackups int    `yaml:"log_max_backups" validate:"gte=0"`
	LogMaxAgeDays int    `yaml:"log_max_age_days" validate:"gte=0"`

	// SimPIN is the SIM card PIN code
	SimPIN string `yaml:"sim_pin"`
	// APN is defined on context 1 when set
	APN string `yaml:"apn"`
	// PDPType overrides the protocol of the activated context
	PDPType string `yaml:"pdp_type" validate:"oneof=IP NONIP IPV4V6 IPV6"`
	// MNOProfile selects the network operator profile, -1 keeps the module's
	MNOProfile int `yaml:"mno_profile" validate:"gte=-1"`

	// Broker is the MQTT broker host
	Broker     string `yaml:"broker" validate:"required,hostname"`
	BrokerPort int    `yaml:"broker_port" validate:"gte=1,lte=65535"`
	// ClientID identifies the device to the broker, MQTT is off without it
	ClientID       string   `yaml:"client_id"`
	RootCAFile     string   `yaml:"root_ca_file" validate:"required_with=ClientID"`
	ClientCertFile string   `yaml:"client_cert_file" validate:"required_with=ClientID"`
	ClientKeyFile  string   `yaml:"client_key_file" validate:"required_with=ClientID"`
	Topics         []string `yaml:"topics" validate:"dive,required"`

	// GNSSPort is the serial port of an external receiver; empty means the
	// module's internal receiver
	GNSSPort string `yaml:"gnss_port"`
	GNSSBaud uint   `yaml:"gnss_baud"`

	// SensePin is the GPIO reporting that the module is powered
	SensePin        string `yaml:"sense_pin"`
	SenseActiveHigh bool   `yaml:"sense_active_high"`
	// PowerPin is the GPIO driving the module's power key
	PowerPin        string `yaml:"power_pin"`
	PowerActiveHigh bool   `yaml:"power_active_high"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
// and validates the result
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.LogMaxSizeMB = 10
		c.LogMaxBackups = 3
		c.LogMaxAgeDays = 28
		c.PDPType = "IP"
		c.MNOProfile = lte.DefaultMNOProfile
		c.Broker = lte.DefaultBroker
		c.BrokerPort = lte.DefaultBrokerPort
		c.Topics = append([]string(nil), lte.DefaultTopics...)
		c.SenseActiveHigh = true
		return nil
	}
}

// WithFile loads configuration from a YAML file. Keys missing from the
// file keep their current value. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from ASSISTNOW_ environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		str := func(name string, dst *string) {
			if v := os.Getenv(envPrefix + name); v != "" {
				*dst = v
			}
		}
		num := func(name string, dst *int) error {
			v := os.Getenv(envPrefix + name)
			if v == "" {
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = n
			return nil
		}

		str("BIND_ADDRESS", &c.BindAddress)
		str("SERIAL_PORT", &c.SerialPort)
		str("LOG_LEVEL", &c.LogLevel)
		str("LOG_FILE", &c.LogFile)
		str("SIM_PIN", &c.SimPIN)
		str("APN", &c.APN)
		str("PDP_TYPE", &c.PDPType)
		str("BROKER", &c.Broker)
		str("CLIENT_ID", &c.ClientID)
		str("ROOT_CA_FILE", &c.RootCAFile)
		str("CLIENT_CERT_FILE", &c.ClientCertFile)
		str("CLIENT_KEY_FILE", &c.ClientKeyFile)
		str("GNSS_PORT", &c.GNSSPort)
		str("SENSE_PIN", &c.SensePin)
		str("POWER_PIN", &c.PowerPin)

		for name, dst := range map[string]*int{
			"BAUD_RATE":   &c.BaudRate,
			"BROKER_PORT": &c.BrokerPort,
			"MNO_PROFILE": &c.MNOProfile,
		} {
			if err := num(name, dst); err != nil {
				return err
			}
		}

		if v := os.Getenv(envPrefix + "FLOW_CONTROL"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%sFLOW_CONTROL: %w", envPrefix, err)
			}
			c.FlowControl = b
		}

		if v := os.Getenv(envPrefix + "TOPICS"); v != "" {
			c.Topics = splitList(v)
		}
		return nil
	}
}

// WithFlags loads configuration from the command-line flags the user set
func WithFlags(cCtx *cli.Context) ConfigOption {
	return func(c *Config) error {
		str := map[string]*string{
			"bind-address":     &c.BindAddress,
			"serial-port":      &c.SerialPort,
			"log-level":        &c.LogLevel,
			"log-file":         &c.LogFile,
			"sim-pin":          &c.SimPIN,
			"apn":              &c.APN,
			"pdp-type":         &c.PDPType,
			"broker":           &c.Broker,
			"client-id":        &c.ClientID,
			"root-ca-file":     &c.RootCAFile,
			"client-cert-file": &c.ClientCertFile,
			"client-key-file":  &c.ClientKeyFile,
			"gnss-port":        &c.GNSSPort,
			"sense-pin":        &c.SensePin,
			"power-pin":        &c.PowerPin,
		}
		for name, dst := range str {
			if cCtx.IsSet(name) {
				*dst = cCtx.String(name)
			}
		}

		num := map[string]*int{
			"baud-rate":   &c.BaudRate,
			"broker-port": &c.BrokerPort,
			"mno-profile": &c.MNOProfile,
		}
		for name, dst := range num {
			if cCtx.IsSet(name) {
				*dst = cCtx.Int(name)
			}
		}

		if cCtx.IsSet("flow-control") {
			c.FlowControl = cCtx.Bool("flow-control")
		}
		if cCtx.IsSet("gnss-baud") {
			c.GNSSBaud = cCtx.Uint("gnss-baud")
		}
		if cCtx.IsSet("topic") {
			c.Topics = cCtx.StringSlice("topic")
		}
		return nil
	}
}

// Credentials reads the broker certificate and key files.
func (c *Config) Credentials() (rootCA, cert, key []byte, err error) {
	if c.ClientID == "" {
		return nil, nil, nil, nil
	}
	files := []struct {
		path string
		dst  *[]byte
	}{
		{c.RootCAFile, &rootCA},
		{c.ClientCertFile, &cert},
		{c.ClientKeyFile, &key},
	}
	for _, f := range files {
		if *f.dst, err = os.ReadFile(f.path); err != nil {
			return nil, nil, nil, fmt.Errorf("read credentials: %w", err)
		}
	}
	return rootCA, cert, key, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
