// Package log is a thin facade over logrus so every package logs through the same instance.
package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

type (
	Level         = logrus.Level
	Fields        = logrus.Fields
	Entry         = logrus.Entry
	Formatter     = logrus.Formatter
	TextFormatter = logrus.TextFormatter
	JSONFormatter = logrus.JSONFormatter
)

const (
	PanicLevel = logrus.PanicLevel
	FatalLevel = logrus.FatalLevel
	ErrorLevel = logrus.ErrorLevel
	WarnLevel  = logrus.WarnLevel
	InfoLevel  = logrus.InfoLevel
	DebugLevel = logrus.DebugLevel
	TraceLevel = logrus.TraceLevel
)

var (
	Debug  = logrus.Debug
	Debugf = logrus.Debugf
	Info   = logrus.Info
	Infof  = logrus.Infof
	Warn   = logrus.Warn
	Warnf  = logrus.Warnf
	Error  = logrus.Error
	Errorf = logrus.Errorf
	Fatal  = logrus.Fatal
	Fatalf = logrus.Fatalf

	WithField  = logrus.WithField
	WithFields = logrus.WithFields
	WithError  = logrus.WithError

	SetLevel     = logrus.SetLevel
	GetLevel     = logrus.GetLevel
	SetFormatter = logrus.SetFormatter
	ParseLevel   = logrus.ParseLevel
)

// SetOutput redirects the standard logger, mostly used to silence sweeps.
func SetOutput(w io.Writer) {
	logrus.SetOutput(w)
}
