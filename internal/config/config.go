package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"go-live-slides/internal/annotate"
)

// Config represents the go-live-slides configuration
type Config struct {
	Annotate AnnotateConfig `yaml:"annotate"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AnnotateConfig controls which classes are read and written
type AnnotateConfig struct {
	Classes      ClassesConfig   `yaml:"classes"`
	Selectors    SelectorsConfig `yaml:"selectors"`
	Blank        string          `yaml:"blank,omitempty"`         // Text of a cleared line number. Default: U+00A0
	CitationText string          `yaml:"citation_text,omitempty"` // Replacement for citation labels. Default: em dash + U+00A0
	Linenos      string          `yaml:"linenos,omitempty"`       // "clear" or "keep": policy for slides without flags. Default: clear
}

// ClassesConfig names the classes written into slides
type ClassesConfig struct {
	InnerStep  string `yaml:"inner_step,omitempty"`
	Marker     string `yaml:"marker,omitempty"`
	StepMarker string `yaml:"step_marker,omitempty"`
	Current    string `yaml:"current,omitempty"`
	Revealed   string `yaml:"revealed,omitempty"`
}

// SelectorsConfig names the classes slides are recognised by
type SelectorsConfig struct {
	Slide         string   `yaml:"slide,omitempty"`
	Code          []string `yaml:"code,omitempty"`
	LineNumber    string   `yaml:"line_number,omitempty"`
	Citation      string   `yaml:"citation,omitempty"`
	CitationLabel string   `yaml:"citation_label,omitempty"`
}

// ServerConfig configures the live preview
type ServerConfig struct {
	Addr      string  `yaml:"addr,omitempty"`       // Listen address. Default: 127.0.0.1:7777
	RateLimit float64 `yaml:"rate_limit,omitempty"` // Browser messages per second. Default: 20
	Burst     int     `yaml:"burst,omitempty"`      // Browser message burst. Default: 10
}

const (
	LinenosClear = "clear"
	LinenosKeep  = "keep"

	defaultAddr      = "127.0.0.1:7777"
	defaultRateLimit = 20
	defaultBurst     = 10
)

// GetAddr returns the listen address (default: 127.0.0.1:7777)
func (c ServerConfig) GetAddr() string {
	if c.Addr == "" {
		return defaultAddr
	}
	return c.Addr
}

// GetRateLimit returns accepted browser messages per second (default: 20)
func (c ServerConfig) GetRateLimit() float64 {
	if c.RateLimit <= 0 {
		return defaultRateLimit
	}
	return c.RateLimit
}

// GetBurst returns the browser message burst (default: 10)
func (c ServerConfig) GetBurst() int {
	if c.Burst <= 0 {
		return defaultBurst
	}
	return c.Burst
}

// Options converts the section into annotator options; empty values fall
// back to annotate.DefaultOptions.
func (c AnnotateConfig) Options() annotate.Options {
	def := annotate.DefaultOptions()
	opts := annotate.Options{
		Classes: annotate.Classes{
			InnerStep:  c.Classes.InnerStep,
			Marker:     c.Classes.Marker,
			StepMarker: c.Classes.StepMarker,
			Current:    c.Classes.Current,
			Revealed:   c.Classes.Revealed,
		},
		Selectors: annotate.Selectors{
			Slide:         c.Selectors.Slide,
			Code:          c.Selectors.Code,
			LineNumber:    c.Selectors.LineNumber,
			Citation:      c.Selectors.Citation,
			CitationLabel: c.Selectors.CitationLabel,
		},
		Blank:          c.Blank,
		CitationText:   c.CitationText,
		ClearByDefault: c.Linenos != LinenosKeep,
	}
	if opts.Blank == "" {
		opts.Blank = def.Blank
	}
	if opts.CitationText == "" {
		opts.CitationText = def.CitationText
	}
	return opts
}

// DefaultConfig returns the configuration used without a configuration file
func DefaultConfig() *Config {
	def := annotate.DefaultOptions()
	return &Config{
		Annotate: AnnotateConfig{
			Classes: ClassesConfig{
				InnerStep:  def.Classes.InnerStep,
				Marker:     def.Classes.Marker,
				StepMarker: def.Classes.StepMarker,
				Current:    def.Classes.Current,
				Revealed:   def.Classes.Revealed,
			},
			Selectors: SelectorsConfig{
				Slide:         def.Selectors.Slide,
				Code:          append([]string(nil), def.Selectors.Code...),
				LineNumber:    def.Selectors.LineNumber,
				Citation:      def.Selectors.Citation,
				CitationLabel: def.Selectors.CitationLabel,
			},
			Blank:        def.Blank,
			CitationText: def.CitationText,
			Linenos:      LinenosClear,
		},
		Server: ServerConfig{
			Addr:      defaultAddr,
			RateLimit: defaultRateLimit,
			Burst:     defaultBurst,
		},
		Logging: LoggingConfig{
			ConsoleLogger: LoggerConfig{Level: LevelNormal},
			FileLogger:    LoggerConfig{Level: LevelNone},
		},
	}
}

// Validate checks enumerated values
func (c *Config) Validate() error {
	switch c.Annotate.Linenos {
	case "", LinenosClear, LinenosKeep:
	default:
		return fmt.Errorf("annotate.linenos: unknown policy %q (want %s or %s)", c.Annotate.Linenos, LinenosClear, LinenosKeep)
	}
	if err := c.Logging.ConsoleLogger.validate("logging.console"); err != nil {
		return err
	}
	return c.Logging.FileLogger.validate("logging.file")
}

// Load loads configuration from a YAML file on top of the defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filepath.Base(configPath), err)
	}
	return cfg, nil
}

// LoadConfiguration loads configPath or returns the defaults when it is empty
func LoadConfiguration(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}
	return Load(configPath)
}

// Dump serializes cfg as YAML
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
