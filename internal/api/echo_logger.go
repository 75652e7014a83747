package api

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/labstack/gommon/log"

	"github.com/tphakala/fretlab/internal/logger"
)

// echoLogger routes echo's own log output into the module logger.
type echoLogger struct {
	log   logger.Logger
	level log.Lvl
}

func newEchoLogger(l logger.Logger) *echoLogger {
	return &echoLogger{log: l, level: log.DEBUG}
}

func (e *echoLogger) Output() io.Writer      { return io.Discard }
func (e *echoLogger) SetOutput(io.Writer)    {}
func (e *echoLogger) Prefix() string         { return "" }
func (e *echoLogger) SetPrefix(string)       {}
func (e *echoLogger) SetHeader(string)       {}
func (e *echoLogger) Level() log.Lvl         { return e.level }
func (e *echoLogger) SetLevel(level log.Lvl) { e.level = level }

func (e *echoLogger) emit(level log.Lvl, msg string) {
	if level < e.level {
		return
	}
	switch level {
	case log.DEBUG:
		e.log.Debug(msg)
	case log.WARN:
		e.log.Warn(msg)
	case log.ERROR:
		e.log.Error(msg)
	default:
		e.log.Info(msg)
	}
}

func (e *echoLogger) emitJSON(level log.Lvl, j log.JSON) {
	data, err := json.Marshal(j)
	if err != nil {
		e.emit(level, fmt.Sprint(j))
		return
	}
	e.emit(level, string(data))
}

func (e *echoLogger) Print(i ...any)                 { e.emit(log.INFO, fmt.Sprint(i...)) }
func (e *echoLogger) Printf(format string, a ...any) { e.emit(log.INFO, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Printj(j log.JSON)              { e.emitJSON(log.INFO, j) }
func (e *echoLogger) Debug(i ...any)                 { e.emit(log.DEBUG, fmt.Sprint(i...)) }
func (e *echoLogger) Debugf(format string, a ...any) { e.emit(log.DEBUG, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Debugj(j log.JSON)              { e.emitJSON(log.DEBUG, j) }
func (e *echoLogger) Info(i ...any)                  { e.emit(log.INFO, fmt.Sprint(i...)) }
func (e *echoLogger) Infof(format string, a ...any)  { e.emit(log.INFO, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Infoj(j log.JSON)               { e.emitJSON(log.INFO, j) }
func (e *echoLogger) Warn(i ...any)                  { e.emit(log.WARN, fmt.Sprint(i...)) }
func (e *echoLogger) Warnf(format string, a ...any)  { e.emit(log.WARN, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Warnj(j log.JSON)               { e.emitJSON(log.WARN, j) }
func (e *echoLogger) Error(i ...any)                 { e.emit(log.ERROR, fmt.Sprint(i...)) }
func (e *echoLogger) Errorf(format string, a ...any) { e.emit(log.ERROR, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Errorj(j log.JSON)              { e.emitJSON(log.ERROR, j) }

// Fatal variants panic like Panic instead of exiting the process.
func (e *echoLogger) Fatal(i ...any)                 { e.Panic(i...) }
func (e *echoLogger) Fatalf(format string, a ...any) { e.Panicf(format, a...) }
func (e *echoLogger) Fatalj(j log.JSON)              { e.Panicj(j) }

func (e *echoLogger) Panic(i ...any) {
	msg := fmt.Sprint(i...)
	e.log.Error(msg)
	panic(msg)
}

func (e *echoLogger) Panicf(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	e.log.Error(msg)
	panic(msg)
}

func (e *echoLogger) Panicj(j log.JSON) {
	e.emitJSON(log.ERROR, j)
	panic(fmt.Sprint(j))
}
