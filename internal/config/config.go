// Package config loads the Radio Link Core's YAML bring-up configuration
// and validates it, following the same load-then-default-then-validate
// shape the rest of the corpus uses for its own service configs.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/wnrf/core/link"
	"github.com/wnrf/core/radio"
)

// BridgeConfig is the on-disk shape of a bridge's bring-up configuration.
type BridgeConfig struct {
	// Radio bring-up.
	DataRate     string `yaml:"data_rate"`     // "1mbps" or "2mbps"
	Channel      string `yaml:"channel"`       // "legacy" or "a".."g"
	UniverseSize int    `yaml:"universe_size"` // 32 (legacy) or up to 512 (universe)

	// Linux SPI/GPIO bring-up.
	SPIPort string `yaml:"spi_port"`
	CEPin   int    `yaml:"ce_pin"`  // BCM GPIO number
	IRQPin  int    `yaml:"irq_pin"` // BCM GPIO number, 0 disables IRQ (polling)

	// Ambient concerns.
	MetricsEnabled   bool   `yaml:"metrics_enabled"`
	BeaconEnabled    bool   `yaml:"beacon_enabled"`
	MinBootloaderVer string `yaml:"min_bootloader_version"`
	LogLevel         string `yaml:"log_level"`
}

// Load reads and parses a YAML config file, applying the same defaults a
// bare-metal fixture would otherwise need repeated in every caller.
func Load(filename string) (*BridgeConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg BridgeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if cfg.DataRate == "" {
		cfg.DataRate = "1mbps"
	}
	if cfg.Channel == "" {
		cfg.Channel = "legacy"
	}
	if cfg.UniverseSize == 0 {
		cfg.UniverseSize = 32
	}
	if cfg.SPIPort == "" {
		cfg.SPIPort = "/dev/spidev0.0"
	}
	if cfg.CEPin == 0 {
		cfg.CEPin = 22
	}
	if cfg.MinBootloaderVer == "" {
		cfg.MinBootloaderVer = "0.0.0"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return &cfg, nil
}

// BringUp translates the validated YAML fields into the value link.NewBridge
// expects.
func (c *BridgeConfig) BringUp() (link.BringUpConfig, error) {
	rate, err := parseDataRate(c.DataRate)
	if err != nil {
		return link.BringUpConfig{}, err
	}
	ch, err := parseChannel(c.Channel)
	if err != nil {
		return link.BringUpConfig{}, err
	}
	return link.BringUpConfig{
		DataRate:     rate,
		Channel:      ch,
		UniverseSize: c.UniverseSize,
	}, nil
}

// HardwareConfig translates the validated YAML fields into the
// Linux/periph.io bring-up value radio.New expects. Bring-up fields
// (channel, data rate, address, width) are left zero here: link.NewBridge
// calls radio.Device.Configure with the session's actual bring-up values
// once the bridge decides legacy vs. universe mode.
func (c *BridgeConfig) HardwareConfig() radio.Config {
	return radio.Config{
		CEPin:      c.CEPin,
		IRQPin:     c.IRQPin,
		SpiBusPath: c.SPIPort,
	}
}

func parseDataRate(s string) (radio.DataRate, error) {
	switch s {
	case "1mbps":
		return radio.DataRate1mbps, nil
	case "2mbps":
		return radio.DataRate2mbps, nil
	default:
		return 0, fmt.Errorf("unknown data_rate %q", s)
	}
}

func parseChannel(s string) (link.LogicalChannel, error) {
	switch s {
	case "legacy":
		return link.ChanLegacy, nil
	case "a":
		return link.ChanA, nil
	case "b":
		return link.ChanB, nil
	case "c":
		return link.ChanC, nil
	case "d":
		return link.ChanD, nil
	case "e":
		return link.ChanE, nil
	case "f":
		return link.ChanF, nil
	case "g":
		return link.ChanG, nil
	default:
		return 0, fmt.Errorf("unknown channel %q", s)
	}
}

// MinBootloaderVersion parses the configured floor as a semantic version,
// for Bridge.SetMinBootloaderVersion to gate Flash sessions against devices
// reporting an older bootloader over the beacon channel.
func (c *BridgeConfig) MinBootloaderVersion() (*version.Version, error) {
	return version.NewVersion(c.MinBootloaderVer)
}
