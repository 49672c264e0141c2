// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package hardware

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"periph.io/x/periph/conn/analog"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// GPIOIODevice drives switch inputs from real GPIO/ADC hardware via
// periph.io. Digital pins are addressed by their periph pin name (e.g.
// "GPIO17"); analog pins by an ADC-capable pin name.
type GPIOIODevice struct {
	mu      sync.Mutex
	digital map[int]gpio.PinIO
	adc     map[int]analog.ADC
	healthy atomic.Bool
}

// NewGPIOIODevice initializes the periph host driver registry. Pins are
// resolved lazily on first read so a config naming an absent pin fails
// at read time, not at startup.
func NewGPIOIODevice() (*GPIOIODevice, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	d := &GPIOIODevice{
		digital: make(map[int]gpio.PinIO),
		adc:     make(map[int]analog.ADC),
	}
	d.healthy.Store(true)
	return d, nil
}

// pinName maps a switch config's integer pin identifier to the periph
// registry name convention used on this board ("GPIO<n>").
func pinName(pin int) string {
	return "GPIO" + strconv.Itoa(pin)
}

func (d *GPIOIODevice) ReadDigital(pin int) (bool, error) {
	d.mu.Lock()
	p, ok := d.digital[pin]
	if !ok {
		p = gpioreg.ByName(pinName(pin))
		if p == nil {
			d.mu.Unlock()
			d.healthy.Store(false)
			return false, fmt.Errorf("%w: unknown gpio pin %d", ErrUnavailable, pin)
		}
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			d.mu.Unlock()
			d.healthy.Store(false)
			return false, fmt.Errorf("%w: configure pin %d as input: %v", ErrUnavailable, pin, err)
		}
		d.digital[pin] = p
	}
	d.mu.Unlock()

	d.healthy.Store(true)
	return p.Read() == gpio.High, nil
}

func (d *GPIOIODevice) ReadAnalog(pin int) (float64, error) {
	d.mu.Lock()
	a, ok := d.adc[pin]
	if !ok {
		generic := gpioreg.ByName(pinName(pin))
		adcPin, isADC := generic.(analog.ADC)
		if generic == nil || !isADC {
			d.mu.Unlock()
			d.healthy.Store(false)
			return 0, fmt.Errorf("%w: pin %d does not support analog input", ErrUnavailable, pin)
		}
		if err := adcPin.ADC(); err != nil {
			d.mu.Unlock()
			d.healthy.Store(false)
			return 0, fmt.Errorf("%w: configure pin %d as adc: %v", ErrUnavailable, pin, err)
		}
		a = adcPin
		d.adc[pin] = a
	}
	d.mu.Unlock()

	lo, hi := a.Range()
	raw := a.Measure()
	d.healthy.Store(true)

	if hi == lo {
		return 0, nil
	}
	normalized := float64(raw-lo) / float64(hi-lo)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}
	return normalized, nil
}

func (d *GPIOIODevice) Healthy() bool { return d.healthy.Load() }

func (d *GPIOIODevice) Close() error { return nil }
