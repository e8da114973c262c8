// Package logging configures the process-wide zerolog logger used by evchan
// commands and supporting packages. The evchan library itself never logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger. It discards everything until Init is called
// with an enabled level.
var Logger zerolog.Logger

// Level is a zerolog level.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	Disabled   = zerolog.Disabled
)

// Config holds logger configuration.
type Config struct {
	Level Level
	// Output defaults to os.Stderr.
	Output io.Writer
	// Pretty selects zerolog's console writer instead of JSON lines.
	Pretty  bool
	NoColor bool
	// TimeFormat defaults to RFC3339.
	TimeFormat string
}

// DefaultConfig returns the configuration in effect before Init.
func DefaultConfig() Config {
	return Config{
		Level:      Disabled,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Init replaces the global logger and returns it.
func Init(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	out := cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: cfg.TimeFormat, NoColor: cfg.NoColor}
	}

	Logger = zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
	return Logger
}

// ParseLevel parses a level name, case-insensitively. Besides zerolog's own
// names it accepts WARNING, and OFF or NONE for Disabled.
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "warning":
		return WarnLevel, nil
	case "off", "none":
		return Disabled, nil
	case "":
		return InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// Resolve picks the level for a command run: an explicit flag wins over the
// configured level, and verbose alone means INFO. With neither, logs stay off.
func Resolve(flag, configured string, verbose bool) (Level, error) {
	switch {
	case flag != "":
		return ParseLevel(flag)
	case configured != "":
		return ParseLevel(configured)
	case verbose:
		return InfoLevel, nil
	default:
		return Disabled, nil
	}
}

// ForComponent returns a child of the global logger tagged with component.
// It captures the logger at call time, so call it after Init.
func ForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

func init() {
	Init(DefaultConfig())
}
