package autosplit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-autosplit/internal/logging"
	"github.com/goliatone/go-autosplit/pkg/livesplit"
	"github.com/goliatone/go-autosplit/pkg/resolver"
)

// DefaultTickRate is the number of ticks per second.
const DefaultTickRate = 60

// Offsets is a list of module offsets parsed from a comma separated list of
// decimal or 0x prefixed numbers.
type Offsets []uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Offsets) UnmarshalText(text []byte) error {
	var out Offsets
	for _, part := range strings.Split(string(text), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 0, 64)
		if err != nil {
			return fmt.Errorf("offset %q: %w", part, err)
		}
		out = append(out, v)
	}
	*o = out
	return nil
}

// Config is the runtime configuration read from the environment.
type Config struct {
	Process        string  `env:"AUTOSPLIT_PROCESS" envDefault:"hollow_knight.x86_64"`
	TickRate       int     `env:"AUTOSPLIT_TICK_RATE" envDefault:"60"`
	LiveSplitAddr  string  `env:"AUTOSPLIT_LIVESPLIT_ADDR" envDefault:"127.0.0.1:16834"`
	StatePath      string  `env:"AUTOSPLIT_STATE_PATH"`
	Evaluator      string  `env:"AUTOSPLIT_EVALUATOR" envDefault:"expr"`
	LogLevel       string  `env:"AUTOSPLIT_LOG_LEVEL" envDefault:"info"`
	Runner         string  `env:"AUTOSPLIT_RUNNER"`
	Module         string  `env:"AUTOSPLIT_MODULE"`
	ScanStride     uint64  `env:"AUTOSPLIT_SCAN_STRIDE"`
	SceneOffsets   Offsets `env:"AUTOSPLIT_SCENE_OFFSETS"`
	ManagerOffsets Offsets `env:"AUTOSPLIT_MANAGER_OFFSETS"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("autosplit: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Process) == "" {
		return fmt.Errorf("autosplit: process name is required")
	}
	if c.TickRate < 0 || c.TickRate > 1000 {
		return fmt.Errorf("autosplit: tick rate %d out of range", c.TickRate)
	}
	if c.ScanStride != 0 && c.ScanStride%4 != 0 {
		return fmt.Errorf("autosplit: scan stride %d must be a multiple of 4", c.ScanStride)
	}
	return nil
}

// Interval is the time between ticks.
func (c Config) Interval() time.Duration {
	rate := c.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return time.Second / time.Duration(rate)
}

// Layout layers the configured overrides over resolver.DefaultLayout.
func (c Config) Layout() resolver.Layout {
	return resolver.LayoutWith(resolver.Layout{
		Module:         c.Module,
		SceneOffsets:   c.SceneOffsets,
		ManagerOffsets: c.ManagerOffsets,
		ScanStride:     c.ScanStride,
	})
}

// Logger builds the root logger at the configured level.
func (c Config) Logger() *logrus.Logger {
	return logging.New(nil, c.LogLevel)
}

// NewEvaluator builds the configured condition engine.
func (c Config) NewEvaluator(cache ProgramCache, registry *FunctionRegistry) (Evaluator, error) {
	return NewEvaluator(c.Evaluator, cache, registry)
}

// NewHost builds the LiveSplit Server client.
func (c Config) NewHost(log logrus.FieldLogger) *livesplit.Client {
	return livesplit.New(c.LiveSplitAddr, livesplit.WithLogger(log))
}
