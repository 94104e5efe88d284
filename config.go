package calc

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the TOML form of engine construction options:
//
//	[calc]
//	mode = "manual"
//	full_precision = false
//	date_system = 1904
//
//	[calc.iterative]
//	enabled = true
//	max_iterations = 100
//	max_change = 0.001
//
//	[locale]
//	tag = "de-DE"
//
//	[engine]
//	workers = 4
//	program_cache_size = 2048
//	bytecode = true
type Config struct {
	Calc   CalcSettings   `toml:"calc"`
	Locale LocaleSettings `toml:"locale"`
	Engine EngineSettings `toml:"engine"`
	Log    LogSettings    `toml:"log"`
}

// EngineSettings tunes the evaluation machinery
type EngineSettings struct {
	// ProgramCacheSize bounds the compiled programs kept, 0 for the default
	ProgramCacheSize int `toml:"program_cache_size"`
	// Workers bounds recalculation goroutines, 0 for GOMAXPROCS
	Workers  int  `toml:"workers"`
	Bytecode bool `toml:"bytecode"`
}

// DefaultConfig returns the configuration NewEngine uses without options
func DefaultConfig() Config {
	return Config{
		Calc:   DefaultCalcSettings(),
		Engine: EngineSettings{Bytecode: true},
	}
}

// ParseConfig decodes TOML over the defaults. unknown keys are an error.
func ParseConfig(data []byte) (*Config, error) {
	c := DefaultConfig()
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, wrapApplicationError(InvalidArgument, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		return nil, NewApplicationError(InvalidArgument, "unknown config keys: "+strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadConfig reads and decodes a TOML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Validate checks the settings, filling zero values with defaults
func (c *Config) Validate() error {
	if err := c.Calc.validate(); err != nil {
		return err
	}
	if c.Engine.Workers < 0 {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("workers must not be negative, got %d", c.Engine.Workers))
	}
	if c.Engine.ProgramCacheSize < 0 {
		return NewApplicationError(InvalidArgument,
			fmt.Sprintf("program cache size must not be negative, got %d", c.Engine.ProgramCacheSize))
	}
	if _, err := LocaleFromSettings(c.Locale); err != nil {
		return err
	}
	return nil
}

// Options turns the configuration into engine options
func (c *Config) Options() ([]Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	locale, err := LocaleFromSettings(c.Locale)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithCalcSettings(c.Calc),
		WithLocale(locale),
		WithBytecode(c.Engine.Bytecode),
		WithProgramCacheSize(c.Engine.ProgramCacheSize),
	}
	if c.Engine.Workers > 0 {
		opts = append(opts, WithWorkers(c.Engine.Workers))
	}
	return opts, nil
}

// NewEngineFromConfig builds an engine from a configuration. extra options
// are applied after the configured ones.
func NewEngineFromConfig(c *Config, extra ...Option) (*Engine, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	return NewEngine(append(opts, extra...)...), nil
}
