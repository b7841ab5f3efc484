// Package logx is a thin structured-logging layer over zerolog.
//
// Components receive a Logger value tagged with a fixed "comp" field and log
// through level methods that accept Field closures. The zero Logger is a safe
// no-op, which keeps constructors free of nil checks.
//
// A Service owns the configured sinks (console, file) and can re-apply a new
// configuration at runtime; Loggers created from a Service stay live across
// Apply() calls.
package logx
