//go:build !tinygo

package radio

import (
	"os"

	"github.com/charmbracelet/log"
)

func init() {
	globalLogger = NewCharmLogger(log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "radio",
	}))
}

// NewCharmLogger adapts a *log.Logger from github.com/charmbracelet/log to
// the radio.Logger interface.
func NewCharmLogger(l *log.Logger) Logger {
	return &charmLogger{l: l}
}

type charmLogger struct {
	l *log.Logger
}

func (c *charmLogger) Debug(msg string) { c.l.Debug(msg) }
func (c *charmLogger) Info(msg string)  { c.l.Info(msg) }
func (c *charmLogger) Warn(msg string)  { c.l.Warn(msg) }
func (c *charmLogger) Error(msg string) { c.l.Error(msg) }
