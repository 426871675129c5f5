package zcache

import (
	"fmt"
	"log"
	"os"
)

// Logger defines an interface for writing log messages, grounded on the
// teacher's internal/base.Logger.
type Logger interface {
	Infof(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// DefaultLogger logs to the Go stdlib log package.
type DefaultLogger struct{}

// Infof implements Logger.
func (DefaultLogger) Infof(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
}

// Fatalf implements Logger. It terminates the process, matching the
// original driver's treatment of class-3 invariant violations (spec.md §7)
// as unrecoverable.
func (DefaultLogger) Fatalf(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
	os.Exit(1)
}
