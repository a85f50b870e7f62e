// Command wnrfd bridges a DMX universe onto the 2.4GHz radio link and
// exposes the point-to-point discovery/OTA surface to an external
// supervisor over the Observer callbacks it logs.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/wnrf/core/internal/config"
	wnrfmetrics "github.com/wnrf/core/internal/metrics"
	"github.com/wnrf/core/link"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "wnrfd.yaml", "Path to the bring-up config file.")
		channel    = pflag.StringP("channel", "C", "", "Override the configured logical channel (legacy, a..g).")
		admin      = pflag.BoolP("admin", "a", false, "Start in admin mode: enable discovery/beacon instead of broadcast.")
		help       = pflag.Bool("help", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "wnrfd - Radio Link Core bridge daemon.")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "wnrfd"})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", "err", err)
	}
	if *channel != "" {
		cfg.Channel = *channel
	}
	switch cfg.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	dev, err := openRadio(cfg)
	if err != nil {
		logger.Fatal("open radio", "err", err)
	}
	defer dev.Close()

	bringUp, err := cfg.BringUp()
	if err != nil {
		logger.Fatal("invalid bring-up config", "err", err)
	}

	observer := &loggingObserver{log: logger}
	bridge, err := link.NewBridge(dev, link.RealClock{}, bringUp, observer)
	if err != nil {
		logger.Fatal("bring up bridge", "err", err)
	}

	if cfg.MetricsEnabled {
		bridge.AttachMetrics(wnrfmetrics.New(prometheus.DefaultRegisterer))
	}
	if minVer, err := cfg.MinBootloaderVersion(); err != nil {
		logger.Warn("invalid min_bootloader_version, flashing is unrestricted", "err", err)
	} else {
		bridge.SetMinBootloaderVersion(minVer)
	}
	if *admin {
		bridge.EnableAdmin()
	}

	run(bridge, logger, cfg.MetricsEnabled)
}

// run drives the bridge's cooperative scheduling loop: Show as fast as the
// pacer allows, and Tick/CheckRX at least every 100ms per spec.
func run(bridge *link.Bridge, logger *log.Logger, metricsEnabled bool) {
	pattern := newChaseGenerator()
	showTicker := time.NewTicker(time.Millisecond)
	tickTicker := time.NewTicker(50 * time.Millisecond)
	statsTicker := time.NewTicker(30 * time.Second)
	defer showTicker.Stop()
	defer tickTicker.Stop()
	defer statsTicker.Stop()

	for {
		select {
		case <-showTicker.C:
			pattern.fill(bridge)
			bridge.Show()
		case <-tickTicker.C:
			bridge.Tick()
			bridge.CheckRX()
		case <-statsTicker.C:
			if !metricsEnabled {
				continue
			}
			snap, err := wnrfmetrics.Gather(prometheus.DefaultGatherer)
			if err != nil {
				logger.Warn("gather metrics", "err", err)
				continue
			}
			logger.Info("metrics snapshot", "frames_sent", snap["wnrf_frames_sent_total"],
				"sessions_active", snap["wnrf_sessions_active"],
				"ota_bytes_written", snap["wnrf_ota_bytes_written_total"])
		}
	}
}

// chaseGenerator is a synthetic DMX source standing in for the real E1.31
// receiver, which is an external collaborator per spec.
type chaseGenerator struct {
	pos byte
}

func newChaseGenerator() *chaseGenerator { return &chaseGenerator{} }

func (c *chaseGenerator) fill(b *link.Bridge) {
	c.pos++
	for ch := 0; ch < 8; ch++ {
		v := byte(0)
		if byte(ch) == c.pos%8 {
			v = 0xFF
		}
		b.SetChannel(ch, v)
	}
}

// loggingObserver reports every Bridge callback through structured logging;
// a real supervisor would replace this with its own Observer implementation.
type loggingObserver struct {
	log *log.Logger
}

func (o *loggingObserver) OnDeviceList(devices []link.DeviceInfo) {
	o.log.Info("discovered devices", "count", len(devices))
	for _, d := range devices {
		o.log.Debug("device", "dev_id", d.DevID, "bootloader", d.BootloaderVer, "start_channel", d.StartChannel)
	}
}

func (o *loggingObserver) OnFlash(dev link.DeviceID, ctx any, result int) {
	o.log.Info("flash complete", "dev_id", dev, "result", result)
}

func (o *loggingObserver) OnStartChannel(dev link.DeviceID, ctx any, result int) {
	o.log.Info("start channel update complete", "dev_id", dev, "result", result)
}

func (o *loggingObserver) OnDeviceID(dev link.DeviceID, ctx any, result int) {
	o.log.Info("device id update complete", "dev_id", dev, "result", result)
}

func (o *loggingObserver) OnRFChannel(dev link.DeviceID, ctx any, result int) {
	o.log.Info("rf channel update complete", "dev_id", dev, "result", result)
}
