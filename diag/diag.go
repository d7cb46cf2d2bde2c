// Package diag collects the warnings and errors discovered while a
// compilation unit is translated. Diagnostics are accumulated in insertion
// order so that repeated runs over identical input report identically.
package diag

import (
	"fmt"
	"strings"
)

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Code is a stable diagnostic identifier. Downstream tooling matches on
// these, so existing values must never be renumbered or renamed.
type Code string

const (
	CodeStackInconsistency    Code = "E0001"
	CodeUnsupportedOpcode     Code = "E0002"
	CodeReservedNameConflict  Code = "E0003"
	CodeRegionLayoutViolation Code = "E0004"
	CodeMalformedInput        Code = "E0005"

	CodeDeprecatedOpcode  Code = "W0001"
	CodeDegradedOpcode    Code = "W0002"
	CodeElisionIneligible Code = "W0003"
)

// SourceLocation points back at the originating source text of an
// instruction or declaration. Column may be zero when the frontend only
// tracks lines.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

func (l SourceLocation) IsZero() bool {
	return l.File == "" && l.Line == 0 && l.Column == 0
}

func (l SourceLocation) String() string {
	if l.IsZero() {
		return "<unknown>"
	}
	if l.Column == 0 {
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Location SourceLocation
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s [%s] %s", d.Severity, d.Location, d.Code, d.Message)
}

// Sink accumulates diagnostics for a single compilation unit. It is owned
// by the worker translating that unit and must not be shared.
type Sink struct {
	diags     []Diagnostic
	numErrors int
}

func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Errorf(code Code, loc SourceLocation, format string, args ...interface{}) {
	s.numErrors++
	s.diags = append(s.diags, Diagnostic{
		Severity: SeverityError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	})
}

func (s *Sink) Warnf(code Code, loc SourceLocation, format string, args ...interface{}) {
	s.diags = append(s.diags, Diagnostic{
		Severity: SeverityWarning,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	})
}

// HasErrors reports whether any fatal diagnostic has been recorded.
// Warnings never make this true.
func (s *Sink) HasErrors() bool {
	return s.numErrors > 0
}

// Diagnostics returns the recorded diagnostics in insertion order.
func (s *Sink) Diagnostics() []Diagnostic {
	return s.diags
}

func (s *Sink) Len() int {
	return len(s.diags)
}

func (s *Sink) String() string {
	var b strings.Builder
	for _, d := range s.diags {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.String()
}
