package log

// Logger defines the logging surface used across the gateway.
// Components receive a Logger by injection and never talk to logrus directly.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// WithField returns a Logger that appends key=value to every line.
	WithField(key string, value interface{}) Logger
	// WithFields is WithField for several keys at once.
	WithFields(fields map[string]interface{}) Logger
}

// OrDefault returns l, or an info-level console logger when l is nil.
func OrDefault(l Logger) Logger {
	if l != nil {
		return l
	}
	fallback, _ := NewLogrusLogger("info", "")
	return fallback
}
