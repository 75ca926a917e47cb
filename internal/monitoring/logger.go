// Package monitoring holds the diagnostic logger shared by the compiler
// packages. Libraries log through Logf and Warnf so that tools and tests can
// redirect or mute them.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs an advisory condition: something the operator should look at
// that does not stop compilation.
func Warnf(format string, v ...interface{}) {
	Logf("[warn] "+format, v...)
}

// Capture redirects Logf into a slice until the returned restore function is
// called. It is meant for tests asserting on emitted diagnostics.
func Capture() (lines *[]string, restore func()) {
	original := Logf
	var captured []string
	Logf = func(format string, v ...interface{}) {
		captured = append(captured, fmt.Sprintf(format, v...))
	}
	return &captured, func() { Logf = original }
}
