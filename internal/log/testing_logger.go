package log

import (
	"io"
	"os"
	"sync"
	"testing"
)

var (
	// reuse the same logger across all tests
	testingLoggerMtx = sync.Mutex{}
	testingLogger    Logger
)

// TestingLogger writes plain logs to stdout when tests run with -v and
// discards them otherwise. It must be called inside a test, because the
// verbose flag is only set at that point.
func TestingLogger() Logger {
	testingLoggerMtx.Lock()
	defer testingLoggerMtx.Unlock()
	if testingLogger != nil {
		return testingLogger
	}

	if testing.Verbose() {
		testingLogger = MustNewLogger(os.Stdout, LogFormatPlain, LogLevelDebug)
	} else {
		testingLogger = NewNopLogger()
	}

	return testingLogger
}

func MustNewLogger(w io.Writer, format, level string) Logger {
	logger, err := NewLogger(w, format, level)
	if err != nil {
		panic(err)
	}
	return logger
}
