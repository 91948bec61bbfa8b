package identify

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOLED drives an LED on a GPIO pin, active high.
type GPIOLED struct {
	pin gpio.PinOut
}

// OpenLED initialises the host drivers and looks up pin by name, e.g.
// "GPIO17".
func OpenLED(name string) (*GPIOLED, error) {
	p, err := openPin(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("led pin %s: %w", name, err)
	}
	return &GPIOLED{pin: p}, nil
}

func (l *GPIOLED) Set(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return l.pin.Out(level)
}

// Button watches a push button wired to ground on an input pin.
type Button struct {
	pin  gpio.PinIn
	poll time.Duration
}

func OpenButton(name string) (*Button, error) {
	p, err := openPin(name)
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("button pin %s: %w", name, err)
	}
	return &Button{pin: p, poll: time.Second}, nil
}

// Watch calls onPress for every falling edge until ctx is done.
func (b *Button) Watch(ctx context.Context, onPress func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if b.pin.WaitForEdge(b.poll) {
			onPress()
		}
	}
}

func openPin(name string) (gpio.PinIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return p, nil
}
