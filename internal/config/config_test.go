package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wnrf/core/link"
	"github.com/wnrf/core/radio"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wnrfd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "channel: a\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "1mbps", cfg.DataRate)
	require.Equal(t, 32, cfg.UniverseSize)
	require.Equal(t, "/dev/spidev0.0", cfg.SPIPort)
	require.Equal(t, "0.0.0", cfg.MinBootloaderVer)
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestBringUpTranslatesFields(t *testing.T) {
	path := writeConfig(t, "channel: b\ndata_rate: 2mbps\nuniverse_size: 512\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	bu, err := cfg.BringUp()
	require.NoError(t, err)
	require.Equal(t, link.ChanB, bu.Channel)
	require.Equal(t, radio.DataRate2mbps, bu.DataRate)
	require.Equal(t, 512, bu.UniverseSize)
}

func TestBringUpRejectsUnknownChannel(t *testing.T) {
	path := writeConfig(t, "channel: zz\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	_, err = cfg.BringUp()
	require.Error(t, err)
}

func TestMinBootloaderVersionParses(t *testing.T) {
	path := writeConfig(t, "min_bootloader_version: 2.1.0\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	v, err := cfg.MinBootloaderVersion()
	require.NoError(t, err)
	require.Equal(t, "2.1.0", v.String())
}
