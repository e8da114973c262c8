// Package topology builds graphs of evchan channels from declarative config files.
package topology

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Kind selects what a configured listener does when its channel fires.
type Kind string

const (
	// KindRecord records the delivery. It is the default.
	KindRecord Kind = "record"
	// KindFail records the delivery and returns a *ListenerError.
	KindFail Kind = "fail"
	// KindPanic records the delivery and panics.
	KindPanic Kind = "panic"
	// KindPassthrough relays the firing to every channel matching To.
	KindPassthrough Kind = "passthrough"
)

// Config describes a set of channels and their listeners.
type Config struct {
	Channels []ChannelConfig `yaml:"channels" json:"channels" validate:"required,min=1,dive"`
}

// ChannelConfig describes one channel. Listeners are registered in order.
type ChannelConfig struct {
	Name      string           `yaml:"name" json:"name" validate:"required"`
	Listeners []ListenerConfig `yaml:"listeners,omitempty" json:"listeners,omitempty" validate:"dive"`
}

// ListenerConfig describes one listener registration.
type ListenerConfig struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty" validate:"required_unless=Kind passthrough"`
	Kind Kind   `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=record fail panic passthrough"`
	// To is a doublestar pattern over channel names, for passthrough listeners.
	To string `yaml:"to,omitempty" json:"to,omitempty" validate:"required_if=Kind passthrough"`
	// Repeat registers the listener this many times. Zero means once.
	Repeat int `yaml:"repeat,omitempty" json:"repeat,omitempty" validate:"gte=0,lte=100"`
}

// kind returns the listener kind with the default applied.
func (l ListenerConfig) kind() Kind {
	if l.Kind == "" {
		return KindRecord
	}
	return l.Kind
}

// times returns how many registrations the listener makes.
func (l ListenerConfig) times() int {
	return max(l.Repeat, 1)
}

// ChannelNames returns the channel names in declaration order.
func (c *Config) ChannelNames() []string {
	names := make([]string, 0, len(c.Channels))
	for _, ch := range c.Channels {
		names = append(names, ch.Name)
	}
	return names
}

// Parse decodes a config. format is a file extension: .yaml, .yml, .json or
// .jsonc. Unknown fields are rejected.
func Parse(data []byte, format string) (*Config, error) {
	var cfg Config

	switch strings.ToLower(format) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported topology format %q", format)
	}

	return &cfg, nil
}

// Load reads, parses and validates the topology file at path.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithRetry is Load with exponential backoff for read and parse
// failures, which happen when a file is observed mid-write. Validation
// failures are returned immediately.
func LoadWithRetry(fs afero.Fs, path string, maxElapsed time.Duration) (*Config, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	var cfg *Config
	err := backoff.Retry(func() error {
		c, err := Load(fs, path)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return backoff.Permanent(err)
			}
			return err
		}
		cfg = c
		return nil
	}, b)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
