// Package internal contains internal implementation details shared
// across the engine's tests.
package internal

import "github.com/erikvoss/netcore"

// NullLogger is a [netcore.Logger] that discards everything.
type NullLogger struct{}

// Debug implements netcore.Logger.
func (nl *NullLogger) Debug(message string) {}

// Debugf implements netcore.Logger.
func (nl *NullLogger) Debugf(format string, v ...any) {}

// Info implements netcore.Logger.
func (nl *NullLogger) Info(message string) {}

// Infof implements netcore.Logger.
func (nl *NullLogger) Infof(format string, v ...any) {}

// Warn implements netcore.Logger.
func (nl *NullLogger) Warn(message string) {}

// Warnf implements netcore.Logger.
func (nl *NullLogger) Warnf(format string, v ...any) {}

var _ netcore.Logger = &NullLogger{}
