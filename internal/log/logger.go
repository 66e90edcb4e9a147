// Package log provides a global logger with a configurable logging level. Command-line tools in
// this repository enable debug output with a -debug flag; the library itself never changes the
// level.
package log

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

type Level int32

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs failures that are not expected during normal use.
	LevelWarning              // Logs failures that are expected to occur occasionally.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs request/response detail. Output can include tokens.
)

var globalLogLevel atomic.Int32

var labels = map[Level]string{
	LevelDebug:   "[debug]",
	LevelInfo:    "[info ]",
	LevelWarning: "[warn ]",
	LevelError:   "[error]",
}

func SetLevel(level Level) {
	globalLogLevel.Store(int32(level))
}

func log(level Level, format string, a ...interface{}) {
	if int32(level) <= globalLogLevel.Load() {
		prefix := fmt.Sprintf("%s %s ", time.Now().Format(time.RFC3339), labels[level])
		fmt.Fprintf(os.Stderr, prefix+format+"\n", a...)
	}
}

func Debug(format string, a ...interface{}) {
	log(LevelDebug, format, a...)
}

func Info(format string, a ...interface{}) {
	log(LevelInfo, format, a...)
}

func Warning(format string, a ...interface{}) {
	log(LevelWarning, format, a...)
}

func Error(format string, a ...interface{}) {
	log(LevelError, format, a...)
}
