// Package monitoring carries the process-wide diagnostic logger shared
// by the scope packages.
package monitoring

import "log"

var logf func(format string, v ...interface{}) = log.Printf

// Logf writes one diagnostic line through the configured logger. The
// default goes to the standard log package.
func Logf(format string, v ...interface{}) {
	logf(format, v...)
}

// SetLogger replaces the package logger. Passing nil mutes all
// diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		logf = func(string, ...interface{}) {}
		return
	}
	logf = f
}
