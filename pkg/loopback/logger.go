package loopback

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging. Logging happens only on
// the control plane; nothing in the real-time entry points logs.
type Logger struct {
	logger zerolog.Logger
}

// LogConfig represents the configuration for logging
type LogConfig struct {
	Level  string
	Pretty bool
	Output io.Writer
}

// DefaultLogConfig returns a default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  "INFO",
		Pretty: true,
		Output: os.Stderr,
	}
}

// NewLogger creates a new structured logger
func NewLogger(config *LogConfig) *Logger {
	if config == nil {
		config = DefaultLogConfig()
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if config.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        config.Output,
			TimeFormat: time.Kitchen,
		})
	} else {
		logger = zerolog.New(config.Output)
	}

	logger = logger.Level(parseLevel(config.Level)).With().Timestamp().Logger()

	return &Logger{logger: logger}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *Logger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

// LogSessionEvent logs session lifecycle events with structured fields.
func (l *Logger) LogSessionEvent(event string, state State, fields map[string]interface{}) {
	l.logger.Info().
		Str("event_type", "session").
		Str("event", event).
		Str("state", string(state)).
		Fields(fields).
		Msg("Session event")
}

// LogError logs a LoopbackError with its code and details.
func (l *Logger) LogError(err *LoopbackError) {
	l.logger.Error().
		Str("error_code", err.Code).
		Time("error_time", err.Timestamp).
		Fields(err.Details).
		Msg(err.Message)
}

// LogSnapshot logs an engine diagnostics snapshot.
func (l *Logger) LogSnapshot(s Snapshot) {
	l.logger.Info().
		Str("event_type", "stats").
		Str("state", string(s.State)).
		Uint64("overruns", s.Counters.Overruns).
		Uint64("underruns", s.Counters.Underruns).
		Uint64("restarts", s.Counters.Restarts).
		Uint64("frames_captured", s.Counters.FramesCaptured).
		Uint64("frames_played", s.Counters.FramesPlayed).
		Int("buffered_frames", s.BufferedFrames).
		Float32("peak_level", s.PeakLevel).
		Bool("healthy", s.Healthy()).
		Msg("Engine snapshot")
}

// Global logger instance
var globalLogger = NewLogger(DefaultLogConfig())

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	return globalLogger
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalLogger = logger
}
