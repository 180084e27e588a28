package harness

import "strings"

// ErrorKind classifies a compiler diagnostic. The zero value means the
// kind is unspecified, which an expectation may use to match any kind.
type ErrorKind string

const (
	KindUnspecified ErrorKind = ""
	KindHelp        ErrorKind = "help"
	KindError       ErrorKind = "error"
	KindNote        ErrorKind = "note"
	KindSuggestion  ErrorKind = "suggestion"
	KindWarning     ErrorKind = "warning"
)

// KindFromToken interprets a directive token such as "ERROR" or a JSON
// level string such as "warning". Unknown tokens map to KindUnspecified.
func KindFromToken(tok string) ErrorKind {
	switch strings.ToLower(strings.TrimSuffix(tok, ":")) {
	case "help":
		return KindHelp
	case "error", "error: internal compiler error":
		return KindError
	case "note":
		return KindNote
	case "suggestion":
		return KindSuggestion
	case "warning", "warn":
		return KindWarning
	}
	return KindUnspecified
}

// Label is the kind rendered for failure reports, with a generic word
// for unspecified kinds.
func (k ErrorKind) Label() string {
	if k == KindUnspecified {
		return "message"
	}
	return string(k)
}

// Diagnostic is the comparable form shared by in-file expectations and
// diagnostics parsed from compiler JSON output: a 1-based line number,
// an optional kind, and a message. For expectations Msg is a substring
// the actual message must contain.
type Diagnostic struct {
	LineNum int
	Kind    ErrorKind
	Msg     string
}

// EnvVar is one key/value pair handed to a child process. Duplicate
// keys are allowed and order is preserved.
type EnvVar struct {
	Key   string
	Value string
}
