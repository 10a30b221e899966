// Package telemetry wires the run controller, stress strategy and managed
// strategy to a shared structured logger, using github.com/joeycumines/logiface
// with the github.com/joeycumines/stumpy backend.
package telemetry

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Level aliases logiface's syslog-style level ladder, so callers of this
// package never need to import logiface directly.
type Level = logiface.Level

const (
	LevelDisabled     = logiface.LevelDisabled
	LevelEmergency    = logiface.LevelEmergency
	LevelAlert        = logiface.LevelAlert
	LevelCritical     = logiface.LevelCritical
	LevelError        = logiface.LevelError
	LevelWarning      = logiface.LevelWarning
	LevelNotice       = logiface.LevelNotice
	LevelInformation  = logiface.LevelInformational
	LevelDebug        = logiface.LevelDebug
	LevelTrace        = logiface.LevelTrace
)

// Logger is the concrete logger type used throughout this module.
type Logger = logiface.Logger[*stumpy.Event]

// New constructs a Logger writing newline-delimited JSON to w at the given
// minimum level. A nil w defaults to os.Stderr, matching stumpy's own
// default.
func New(level Level, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		logiface.WithLevel[*stumpy.Event](level),
	)
}

// Noop returns a Logger with logging disabled, for use where no logger is
// configured (e.g. Config.LogLevel left at its zero value in tests).
func Noop() *Logger {
	return stumpy.L.New(
		logiface.WithLevel[*stumpy.Event](logiface.LevelDisabled),
	)
}
