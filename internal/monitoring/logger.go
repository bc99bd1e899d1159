// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf;
// replace it with SetLogger to redirect or mute output.
var Logf = log.Printf

// Debugf logs only when debug logging has been enabled. Hot paths (per-pair
// estimation) should log through this so production runs stay quiet.
var Debugf = func(string, ...interface{}) {}

// SetLogger replaces the package logger. A nil argument installs a no-op
// logger, which is what tests usually want.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// EnableDebug routes Debugf through the current Logf with a prefix.
func EnableDebug() {
	Debugf = func(format string, v ...interface{}) {
		Logf("[debug] "+format, v...)
	}
}
