// Package logx provides structured logging for wablast.
//
// It wraps zerolog behind a small Logger value type so components can log
// through a stable API while sinks (console, file) are swapped at runtime
// via Service.Apply without invalidating existing loggers.
package logx
