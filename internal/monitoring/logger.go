package monitoring

import "log"

// LogFunc is the printf-style signature used for diagnostics.
type LogFunc func(format string, v ...interface{})

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Safety rejections, link replies and controller
// transitions are all reported through it.
var Logf LogFunc = log.Printf

// SetLogger replaces the package logger and returns the previous one so callers
// can restore it. Passing nil installs a no-op logger.
func SetLogger(f LogFunc) LogFunc {
	prev := Logf
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return prev
	}
	Logf = f
	return prev
}
