package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkAccumulatesInOrder(t *testing.T) {
	s := NewSink()
	assert.False(t, s.HasErrors())

	s.Warnf(CodeDegradedOpcode, SourceLocation{File: "a.sol", Line: 3}, "first")
	s.Errorf(CodeUnsupportedOpcode, SourceLocation{File: "a.sol", Line: 9}, "second %d", 2)
	s.Warnf(CodeElisionIneligible, SourceLocation{}, "third")

	require.Equal(t, 3, s.Len())
	ds := s.Diagnostics()
	assert.Equal(t, "first", ds[0].Message)
	assert.Equal(t, "second 2", ds[1].Message)
	assert.Equal(t, "third", ds[2].Message)

	assert.Equal(t, SeverityWarning, ds[0].Severity)
	assert.Equal(t, SeverityError, ds[1].Severity)
}

func TestHasErrorsIgnoresWarnings(t *testing.T) {
	s := NewSink()
	s.Warnf(CodeDeprecatedOpcode, SourceLocation{}, "only a warning")
	assert.False(t, s.HasErrors())
	s.Errorf(CodeMalformedInput, SourceLocation{}, "fatal")
	assert.True(t, s.HasErrors())
}

func TestSourceLocationString(t *testing.T) {
	assert.Equal(t, "<unknown>", SourceLocation{}.String())
	assert.Equal(t, "a.sol:12", SourceLocation{File: "a.sol", Line: 12}.String())
	assert.Equal(t, "a.sol:12:4", SourceLocation{File: "a.sol", Line: 12, Column: 4}.String())
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{
		Severity: SeverityError,
		Code:     CodeStackInconsistency,
		Message:  "depth mismatch",
		Location: SourceLocation{File: "c.sol", Line: 7},
	}
	assert.Equal(t, "error: c.sol:7 [E0001] depth mismatch", d.String())
}
