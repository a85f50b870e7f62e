//go:build !tinygo

package main

import (
	"github.com/wnrf/core/internal/config"
	"github.com/wnrf/core/radio"
)

// openRadio brings up the Linux/periph.io SPI+GPIO driver for the pins and
// bus path named in cfg. Adapted from the bare sender/receiver examples'
// setup-periph.go: here the hardware config comes from a loaded file instead
// of being hardcoded, and the returned *radio.Device feeds a link.Bridge
// rather than being driven directly.
func openRadio(cfg *config.BridgeConfig) (*radio.Device, error) {
	return radio.New(cfg.HardwareConfig())
}
