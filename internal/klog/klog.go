// Package klog is the kernel's structured logger. It plays the same role
// biscuit's bare fmt.Printf calls and tfdump/hexdump helpers in main.go
// play -- a place for subsystems to report interesting events and dump
// state before a panic -- but routes through logrus so fields (subsystem,
// tid, priority, ...) stay queryable instead of being interpolated into a
// raw string.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: false})
	return l
}

// For returns a logger scoped to a subsystem name ("sched", "vm", "swap",
// ...), matching the subsystem breakdown in spec.md §2's component table.
func For(subsystem string) *logrus.Entry {
	return log.WithField("subsys", subsystem)
}

// SetLevel adjusts verbosity; used by cmd/kernel's -v flag.
func SetLevel(lvl logrus.Level) {
	log.SetLevel(lvl)
}

// Panicf logs the given fields and message at Error level on the
// subsystem logger and then panics through logrus.Panicf, mirroring biscuit's tfdump-then-panic idiom for
// invariant violations (spec.md §7 tier 1).
func Panicf(subsystem string, fields logrus.Fields, format string, args ...interface{}) {
	For(subsystem).WithFields(fields).Errorf(format, args...)
	logrus.Panicf(format, args...)
}
