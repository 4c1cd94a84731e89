package logger

// Logger defines the interface for logging operations.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	// With returns a child logger that adds key=value to every event.
	With(key, value string) Logger
}
