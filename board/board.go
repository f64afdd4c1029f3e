// Package board wires the two module control lines of the carrier board:
// the module-on sense input and the power key output.
package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Sense reports whether the module is powered.
type Sense interface {
	ModuleOn() bool
}

// PowerKey toggles the module power by holding its PWR_ON line.
type PowerKey interface {
	Pulse(ctx context.Context, hold time.Duration) error
}

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

func lookup(name string) (gpio.PinIO, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("no gpio pin named %q", name)
	}
	return pin, nil
}

func level(activeHigh bool) gpio.Level {
	if activeHigh {
		return gpio.High
	}
	return gpio.Low
}

// GPIOSense reads the module-on indicator pin.
type GPIOSense struct {
	pin    gpio.PinIO
	active gpio.Level
}

// OpenSense looks up the named pin and configures it as an input.
func OpenSense(name string, activeHigh bool) (*GPIOSense, error) {
	pin, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return NewGPIOSense(pin, activeHigh)
}

func NewGPIOSense(pin gpio.PinIO, activeHigh bool) (*GPIOSense, error) {
	if err := pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure %s as input: %w", pin, err)
	}
	return &GPIOSense{pin: pin, active: level(activeHigh)}, nil
}

func (s *GPIOSense) ModuleOn() bool {
	return s.pin.Read() == s.active
}

// GPIOPowerKey drives the power key pin. The idle level is the inverse of
// the active level.
type GPIOPowerKey struct {
	pin    gpio.PinIO
	active gpio.Level
}

// OpenPowerKey looks up the named pin and drives it to its idle level.
func OpenPowerKey(name string, activeHigh bool) (*GPIOPowerKey, error) {
	pin, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return NewGPIOPowerKey(pin, activeHigh)
}

func NewGPIOPowerKey(pin gpio.PinIO, activeHigh bool) (*GPIOPowerKey, error) {
	k := &GPIOPowerKey{pin: pin, active: level(activeHigh)}
	if err := pin.Out(!k.active); err != nil {
		return nil, fmt.Errorf("configure %s as output: %w", pin, err)
	}
	return k, nil
}

// Pulse holds the key active for hold and releases it. The key is released
// even when ctx ends early.
func (k *GPIOPowerKey) Pulse(ctx context.Context, hold time.Duration) error {
	if err := k.pin.Out(k.active); err != nil {
		return err
	}
	t := time.NewTimer(hold)
	defer t.Stop()

	var err error
	select {
	case <-t.C:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if outErr := k.pin.Out(!k.active); outErr != nil && err == nil {
		err = outErr
	}
	return err
}

// Static is a Sense with a fixed answer, for boards without the sense line.
type Static bool

func (s Static) ModuleOn() bool { return bool(s) }
