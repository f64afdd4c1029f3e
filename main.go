package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"i4.energy/across/assistnow/board"
	"i4.energy/across/assistnow/gnss"
	"i4.energy/across/assistnow/lte"
	"i4.energy/across/assistnow/modem"
)

func main() {
	app := &cli.App{
		Name:   "assistnow",
		Usage:  "fetch GNSS assistance data over LTE and inject it into a receiver",
		Flags:  flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("Exited with error", "error", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Load configuration from YAML `FILE`"},
		&cli.StringFlag{Name: "serial-port", Value: "/dev/ttyUSB0", Usage: "Serial port to connect to the modem"},
		&cli.IntFlag{Name: "baud-rate", Value: 115200, Usage: "Baud rate for serial communication"},
		&cli.BoolFlag{Name: "flow-control", Usage: "Enable RTS/CTS flow control"},
		&cli.StringFlag{Name: "bind-address", Value: "0.0.0.0:8080", Usage: "Bind address for the HTTP server"},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level (debug, info, warn, error)"},
		&cli.StringFlag{Name: "log-file", Usage: "Write a rotated JSON log to `FILE` instead of stderr"},
		&cli.StringFlag{Name: "sim-pin", Usage: "SIM card PIN code (if required)"},
		&cli.StringFlag{Name: "apn", Usage: "Access point name for context 1"},
		&cli.StringFlag{Name: "pdp-type", Value: "IP", Usage: "Packet data protocol (IP, NONIP, IPV4V6, IPV6)"},
		&cli.IntFlag{Name: "mno-profile", Value: lte.DefaultMNOProfile, Usage: "Network operator profile, -1 keeps the module's"},
		&cli.StringFlag{Name: "broker", Value: lte.DefaultBroker, Usage: "MQTT broker host"},
		&cli.IntFlag{Name: "broker-port", Value: lte.DefaultBrokerPort, Usage: "MQTT broker port"},
		&cli.StringFlag{Name: "client-id", Usage: "MQTT client id, MQTT is disabled without one"},
		&cli.StringFlag{Name: "root-ca-file", Usage: "Broker root certificate (PEM)"},
		&cli.StringFlag{Name: "client-cert-file", Usage: "Device certificate (PEM)"},
		&cli.StringFlag{Name: "client-key-file", Usage: "Device private key (PEM)"},
		&cli.StringSliceFlag{Name: "topic", Usage: "MQTT topic to subscribe, may be repeated"},
		&cli.StringFlag{Name: "gnss-port", Usage: "Serial port of an external GNSS receiver"},
		&cli.UintFlag{Name: "gnss-baud", Value: gnss.DefaultBaudRate, Usage: "Baud rate of the GNSS receiver"},
		&cli.StringFlag{Name: "sense-pin", Usage: "GPIO reporting that the module is on"},
		&cli.StringFlag{Name: "power-pin", Usage: "GPIO driving the module's power key"},
	}
}

func run(c *cli.Context) error {
	config, err := LoadConfig(WithDefaults(), WithFile(c.String("config")), WithEnv(), WithFlags(c))
	if err != nil {
		return err
	}

	logger, logCloser := newLogger(config)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCA, cert, key, err := config.Credentials()
	if err != nil {
		return err
	}

	builder := modem.NewConfigBuilder().
		WithBaudRate(config.BaudRate).
		WithFlowControl(config.FlowControl).
		WithSimPIN(config.SimPIN).
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		})
	if config.PowerPin != "" {
		powerKey, err := board.OpenPowerKey(config.PowerPin, config.PowerActiveHigh)
		if err != nil {
			return err
		}
		builder = builder.WithPowerKey(powerKey)
	}
	modemConfig, err := builder.Build()
	if err != nil {
		return fmt.Errorf("create modem config: %w", err)
	}

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		return err
	}

	machineConfig := lte.Config{
		APN:        config.APN,
		PDPType:    modem.ParsePDPType(config.PDPType),
		MNOProfile: config.MNOProfile,
		Broker:     config.Broker,
		BrokerPort: config.BrokerPort,
		ClientID:   config.ClientID,
		RootCA:     rootCA,
		ClientCert: cert,
		ClientKey:  key,
		Topics:     config.Topics,
		Logger:     logger.With("component", "lte"),
	}

	closers := []io.Closer{m}
	if config.GNSSPort != "" {
		sink, err := gnss.OpenSerialSink(config.GNSSPort, config.GNSSBaud, logger.With("component", "gnss"))
		if err != nil {
			return multierr.Append(err, m.Close())
		}
		machineConfig.Sink = sink
		closers = append(closers, sink)
	}
	if config.SensePin != "" {
		sense, err := board.OpenSense(config.SensePin, config.SenseActiveHigh)
		if err != nil {
			return multierr.Append(err, closeAll(closers))
		}
		machineConfig.Sense = sense
	}

	machine := lte.New(m, machineConfig)
	logger.Info("Starting AssistNow client", "serial_port", config.SerialPort, "broker", config.Broker)

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Machine: machine,
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := machine.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Closing HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("Closing modem connection")
	return multierr.Append(err, closeAll(closers))
}

func closeAll(closers []io.Closer) error {
	var err error
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the JSON logger, writing to a rotated file when one is
// configured.
func newLogger(config *Config) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if config.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    config.LogMaxSizeMB,
			MaxBackups: config.LogMaxBackups,
			MaxAge:     config.LogMaxAgeDays,
			Compress:   true,
		}
		out, closer = rotated, rotated
	}
	opts := &slog.HandlerOptions{Level: parseLevel(config.LogLevel)}
	return slog.New(slog.NewJSONHandler(out, opts)), closer
}
