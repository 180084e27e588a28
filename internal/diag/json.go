// Package diag parses the structured JSON diagnostics the compiler
// emits on standard error and flattens them into the comparable form
// the expected-error matcher consumes.
package diag

import (
	"encoding/json"
	"fmt"
	"strings"

	"testrig/internal/domain/harness"
)

type jsonDiagnostic struct {
	Message  string           `json:"message"`
	Level    string           `json:"level"`
	Spans    []jsonSpan       `json:"spans"`
	Children []jsonDiagnostic `json:"children"`
	Rendered *string          `json:"rendered"`
}

type jsonSpan struct {
	FileName             string         `json:"file_name"`
	LineStart            int            `json:"line_start"`
	LineEnd              int            `json:"line_end"`
	IsPrimary            bool           `json:"is_primary"`
	Label                *string        `json:"label"`
	SuggestedReplacement *string        `json:"suggested_replacement"`
	Expansion            *jsonExpansion `json:"expansion"`
}

type jsonExpansion struct {
	Span jsonSpan `json:"span"`
}

// ParseOutput extracts every diagnostic keyed to fileName from the
// compiler's stderr. Each stderr line starting with `{` is one JSON
// diagnostic; anything else is ignored. fileName is compared with
// forward slashes regardless of the platform the paths came from.
func ParseOutput(fileName, stderr string) ([]harness.Diagnostic, error) {
	fileName = strings.ReplaceAll(fileName, `\`, "/")

	var diags []harness.Diagnostic
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var d jsonDiagnostic
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			return nil, fmt.Errorf("malformed JSON diagnostic %q: %w", line, err)
		}
		flatten(&diags, &d, nil, fileName)
	}
	return diags, nil
}

// flatten appends the comparable entries of one diagnostic tree. A
// child without spans of its own inherits the parent's primary spans,
// which is how sub-messages end up anchored to the reported line.
func flatten(out *[]harness.Diagnostic, d *jsonDiagnostic, defaultSpans []jsonSpan, fileName string) {
	var inFile, primary []jsonSpan
	for _, s := range d.Spans {
		if strings.ReplaceAll(s.FileName, `\`, "/") != fileName {
			continue
		}
		inFile = append(inFile, s)
		if s.IsPrimary {
			primary = append(primary, s)
		}
	}
	if len(primary) == 0 {
		primary = defaultSpans
	}

	if d.Message != "" {
		kind := harness.KindFromToken(d.Level)
		for _, s := range primary {
			*out = append(*out, harness.Diagnostic{
				LineNum: s.LineStart,
				Kind:    kind,
				Msg:     d.Message,
			})
		}
	}

	for _, s := range inFile {
		if s.Label != nil && *s.Label != "" {
			*out = append(*out, harness.Diagnostic{
				LineNum: s.LineStart,
				Kind:    harness.KindNote,
				Msg:     *s.Label,
			})
		}
	}
	for _, s := range primary {
		if s.SuggestedReplacement != nil {
			*out = append(*out, harness.Diagnostic{
				LineNum: s.LineStart,
				Kind:    harness.KindSuggestion,
				Msg:     *s.SuggestedReplacement,
			})
		}
	}

	for i := range d.Children {
		flatten(out, &d.Children[i], primary, fileName)
	}
}
