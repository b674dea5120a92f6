// Package config loads settings for the databin command.
//
// Configuration comes from a single YAML file named by the --config flag or
// the DATABIN_CONFIG environment variable. The file holds base values and
// optional per-platform sections (pc, ps2) that override the base when the
// selected platform matches.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meigma/databin"
	"github.com/meigma/databin/internal/deflate"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "DATABIN_CONFIG"

// Platform identifies the game build an archive belongs to.
type Platform string

const (
	// PC is the Windows release.
	PC Platform = "pc"
	// PS2 is the PlayStation 2 release.
	PS2 Platform = "ps2"
)

// Config holds settings shared by every databin subcommand.
type Config struct {
	// Platform selects which override section applies.
	Platform Platform `yaml:"platform"`

	// SeedNames are extra paths used to name hash-only records on load.
	SeedNames []string `yaml:"seed_names"`

	// SeedNamesFile is a text file with one extra seed path per line.
	SeedNamesFile string `yaml:"seed_names_file"`

	// CompressionLevel is the zlib level used for compressed entries.
	CompressionLevel int `yaml:"compression_level"`

	// DegradeOnParseError keeps unparseable records as opaque entries.
	DegradeOnParseError bool `yaml:"degrade_on_parse_error"`

	// MaxEntrySize limits the inflated size of any entry. Zero disables it.
	MaxEntrySize uint32 `yaml:"max_entry_size"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// ExtractWorkers bounds concurrent file writes during extraction.
	// Zero uses GOMAXPROCS; a negative value writes serially.
	ExtractWorkers int `yaml:"extract_workers"`

	// Per-platform overrides, applied after the base values are loaded.
	PC  *Overrides `yaml:"pc,omitempty"`
	PS2 *Overrides `yaml:"ps2,omitempty"`
}

// Overrides contains fields that can be overridden per platform.
// Nil fields keep the base value; seed names are appended.
type Overrides struct {
	SeedNames           []string `yaml:"seed_names,omitempty"`
	SeedNamesFile       *string  `yaml:"seed_names_file,omitempty"`
	CompressionLevel    *int     `yaml:"compression_level,omitempty"`
	DegradeOnParseError *bool    `yaml:"degrade_on_parse_error,omitempty"`
	MaxEntrySize        *uint32  `yaml:"max_entry_size,omitempty"`
	LogLevel            *string  `yaml:"log_level,omitempty"`
	ExtractWorkers      *int     `yaml:"extract_workers,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Platform:         PC,
		CompressionLevel: deflate.DefaultLevel,
		MaxEntrySize:     databin.DefaultMaxEntrySize,
		LogLevel:         "warn",
	}
}

// Load loads the file named by DATABIN_CONFIG, or returns Default when the
// variable is unset. A non-empty platform replaces the file's platform.
func Load(platform Platform) (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		cfg := Default()
		if platform != "" {
			cfg.Platform = platform
		}
		return cfg, nil
	}
	return LoadFile(path, platform)
}

// LoadFile loads configuration from path on top of Default, applies the
// overrides for the selected platform, and expands ${VAR} references in
// file paths. A non-empty platform replaces the file's platform.
func LoadFile(path string, platform Platform) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data, platform)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML data on top of Default and applies platform overrides.
func Parse(data []byte, platform Platform) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if platform != "" {
		cfg.Platform = platform
	}
	cfg.applyPlatformOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyPlatformOverrides() {
	var o *Overrides
	switch c.Platform {
	case PC:
		o = c.PC
	case PS2:
		o = c.PS2
	}
	if o == nil {
		return
	}

	c.SeedNames = append(c.SeedNames, o.SeedNames...)
	if o.SeedNamesFile != nil {
		c.SeedNamesFile = *o.SeedNamesFile
	}
	if o.CompressionLevel != nil {
		c.CompressionLevel = *o.CompressionLevel
	}
	if o.DegradeOnParseError != nil {
		c.DegradeOnParseError = *o.DegradeOnParseError
	}
	if o.MaxEntrySize != nil {
		c.MaxEntrySize = *o.MaxEntrySize
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.ExtractWorkers != nil {
		c.ExtractWorkers = *o.ExtractWorkers
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func (c *Config) expandVariables() {
	c.SeedNamesFile = expandVars(c.SeedNamesFile)
}

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Platform != PC && c.Platform != PS2 {
		errs = append(errs, fmt.Errorf("invalid platform: %q", c.Platform))
	}
	if c.CompressionLevel < -2 || c.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("compression_level %d outside [-2, 9]", c.CompressionLevel))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.SeedNames {
		if len(name)+1 > databin.PathSize {
			errs = append(errs, fmt.Errorf("seed name %q: %w", name, databin.ErrPathTooLong))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// Workers returns the extraction worker count with zero resolved to
// GOMAXPROCS.
func (c *Config) Workers() int {
	if c.ExtractWorkers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.ExtractWorkers
}

// AllSeedNames returns SeedNames followed by the names listed in
// SeedNamesFile. Blank lines and lines starting with '#' are skipped.
func (c *Config) AllSeedNames() ([]string, error) {
	names := append([]string(nil), c.SeedNames...)
	if c.SeedNamesFile == "" {
		return names, nil
	}
	data, err := os.ReadFile(c.SeedNamesFile)
	if err != nil {
		return nil, fmt.Errorf("read seed names: %w", err)
	}
	for line := range strings.Lines(string(data)) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

// ArchiveOptions converts the configuration into archive options.
func (c *Config) ArchiveOptions(logger *slog.Logger) ([]databin.Option, error) {
	seeds, err := c.AllSeedNames()
	if err != nil {
		return nil, err
	}
	return []databin.Option{
		databin.WithLogger(logger),
		databin.WithSeedNames(seeds...),
		databin.WithCompressionLevel(c.CompressionLevel),
		databin.WithDegradeOnParseError(c.DegradeOnParseError),
		databin.WithMaxEntrySize(c.MaxEntrySize),
	}, nil
}
