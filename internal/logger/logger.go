package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Code attaches the error and its code to the event.
func (e *LogEvent) Code(err error) *LogEvent {
	if code := errors.CodeOf(err); code != "" {
		e.Event = e.Event.Str("error_code", string(code))
	}
	e.Event = e.Event.Err(err)

	return e
}

type zlogger struct {
	zl zerolog.Logger
}

func (l *zlogger) Debug() *LogEvent { return &LogEvent{l.zl.Debug()} }
func (l *zlogger) Info() *LogEvent  { return &LogEvent{l.zl.Info()} }
func (l *zlogger) Warn() *LogEvent  { return &LogEvent{l.zl.Warn()} }
func (l *zlogger) Error() *LogEvent { return &LogEvent{l.zl.Error()} }

func (l *zlogger) With(key, value string) Logger {
	return &zlogger{zl: l.zl.With().Str(key, value).Logger()}
}

// Init initializes the global logger for console output
func Init(level string, isService bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	SetLogLevel(lvl)

	return nil
}

// New returns a JSON logger writing to w. The global level still applies.
func New(w io.Writer) Logger {
	return &zlogger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &zlogger{zl: zerolog.Nop()}
}

// Default returns the global logger as a Logger.
func Default() Logger {
	return &zlogger{zl: log}
}

// ParseLevel maps a configured level name to a LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}
