// Package diagnostics implements the toolchain's error taxonomy: every
// failure surfaced to a caller carries one of a fixed set of codes so a
// driver program can decide whether to retry, abort the run, or continue
// with a degraded result.
package diagnostics

import "fmt"

// Code classifies where in the pipeline a Diagnostic originated.
type Code string

const (
	// ConfigError signals a malformed or missing configuration value.
	ConfigError Code = "CONFIG_ERROR"
	// FrontendError signals the input module failed well-formedness checks
	// before any pass ran.
	FrontendError Code = "FRONTEND_ERROR"
	// PassError signals an obfuscation pass failed or produced an
	// ill-formed module.
	PassError Code = "PASS_ERROR"
	// OptimizerError signals the evolutionary optimizer could not produce
	// a usable pass sequence.
	OptimizerError Code = "OPTIMIZER_ERROR"
	// LedgerConnectError signals the integrity recorder could not reach
	// its configured ledger endpoint.
	LedgerConnectError Code = "LEDGER_CONNECT_ERROR"
	// LedgerSubmitError signals a ledger transaction was rejected or never
	// confirmed.
	LedgerSubmitError Code = "LEDGER_SUBMIT_ERROR"
	// IntegrityMismatch signals a recorded hash does not match the
	// artifact presented for verification.
	IntegrityMismatch Code = "INTEGRITY_MISMATCH"
)

// Severity distinguishes a fatal error from an advisory note attached to an
// otherwise successful run.
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Diagnostic is one coded, severity-tagged message attached to a pipeline
// Result.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Cause    error
}

func (d *Diagnostic) Error() string {
	if d.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", d.Code, d.Message, d.Cause)
	}
	return fmt.Sprintf("[%s] %s", d.Code, d.Message)
}

func (d *Diagnostic) Unwrap() error { return d.Cause }

// New builds an Error-severity diagnostic with the given code and message.
func New(code Code, message string) *Diagnostic {
	return &Diagnostic{Severity: Error, Code: code, Message: message}
}

// Wrap builds an Error-severity diagnostic that chains cause.
func Wrap(code Code, message string, cause error) *Diagnostic {
	return &Diagnostic{Severity: Error, Code: code, Message: message, Cause: cause}
}

// Warnf builds a Warning-severity diagnostic.
func Warnf(code Code, format string, args ...any) *Diagnostic {
	return &Diagnostic{Severity: Warning, Code: code, Message: fmt.Sprintf(format, args...)}
}
