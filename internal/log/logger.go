package log

// Logger is what every component of the market takes.
type Logger interface {
	Debug(msg string, keyVals ...interface{})
	Info(msg string, keyVals ...interface{})
	Error(msg string, keyVals ...interface{})

	With(keyVals ...interface{}) Logger
}

const (
	LogFormatPlain = "plain"
	LogFormatText  = "text"
	LogFormatJSON  = "json"

	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelError = "error"
)
