package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger levels.
const (
	LevelNone   = "none"
	LevelNormal = "normal"
	LevelDebug  = "debug"
)

// Console streams.
const (
	StreamSplit  = "split"  // info to stdout, errors to stderr
	StreamStderr = "stderr" // everything to stderr, stdout stays free for RPC
)

type LoggerConfig struct {
	Level       string `yaml:"level"`
	Destination string `yaml:"destination,omitempty"`
	Mode        string `yaml:"mode,omitempty"`   // file only: append or overwrite
	Stream      string `yaml:"stream,omitempty"` // console only: split or stderr
}

type LoggingConfig struct {
	FileLogger    LoggerConfig `yaml:"file"`
	ConsoleLogger LoggerConfig `yaml:"console"`
}

func (c LoggerConfig) validate(section string) error {
	switch c.Level {
	case "", LevelNone, LevelNormal, LevelDebug:
	default:
		return fmt.Errorf("%s.level: unknown level %q", section, c.Level)
	}
	switch c.Mode {
	case "", "append", "overwrite":
	default:
		return fmt.Errorf("%s.mode: unknown mode %q", section, c.Mode)
	}
	switch c.Stream {
	case "", StreamSplit, StreamStderr:
	default:
		return fmt.Errorf("%s.stream: unknown stream %q", section, c.Stream)
	}
	return nil
}

func minLevel(level string) (zapcore.Level, bool) {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel, true
	case LevelNormal:
		return zapcore.InfoLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// Prepare returns our standard logger - configured zap logger for use by the program.
func (conf *LoggingConfig) Prepare() (*zap.Logger, error) {

	// Console - split stdout and stderr unless told otherwise

	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(ec)

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	cores := make([]zapcore.Core, 0, 3)
	if lowest, ok := minLevel(conf.ConsoleLogger.Level); ok {
		if conf.ConsoleLogger.Stream == StreamStderr {
			cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), lowest))
		} else {
			cores = append(cores,
				zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout),
					zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
						return lowest <= lvl && lvl < zapcore.ErrorLevel
					})),
				zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), highPriority))
		}
	}

	// File

	if lowest, ok := minLevel(conf.FileLogger.Level); ok && conf.FileLogger.Destination != "" {
		fname := filepath.Clean(conf.FileLogger.Destination)
		if err := os.MkdirAll(filepath.Dir(fname), 0o755); err != nil {
			return nil, fmt.Errorf("unable to create log directory: %w", err)
		}
		flags := os.O_CREATE | os.O_WRONLY
		if conf.FileLogger.Mode == "append" {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(fname, flags, 0o644)
		if err != nil {
			return nil, fmt.Errorf("unable to open log file: %w", err)
		}
		fileEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(f), zap.NewAtomicLevelAt(lowest)))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
