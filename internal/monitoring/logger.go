package monitoring

import "log"

// Logf is the package-level diagnostic logger shared by the sampling
// pipeline. It defaults to log.Printf; tests and batch tools replace it via
// SetLogger to mute or redirect output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
