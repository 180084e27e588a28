// Package expect loads in-file error annotations: comment markers that
// pin a diagnostic the compiler must emit to a source line.
package expect

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"testrig/internal/domain/harness"
)

// Load scans testFile for `//~` annotations and returns the expected
// diagnostics in source order, line numbers 1-based. Each `^` after the
// marker moves the anchor one line up; a `|` continuation reuses the
// anchor of the previous non-continuation annotation, allowing several
// expectations on one source line. Annotations written `//[rev]~` are
// honored only when revision equals rev; plain `//~` always applies.
func Load(testFile, revision string) ([]harness.Diagnostic, error) {
	f, err := os.Open(testFile)
	if err != nil {
		return nil, &harness.Failure{
			Kind: harness.MissingFile,
			Msg:  fmt.Sprintf("open test file: %v", err),
		}
	}
	defer f.Close()

	var expected []harness.Diagnostic
	lastAnchor := 0
	lineNum := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNum++
		rest, ok := findAnnotation(scanner.Text(), revision)
		if !ok {
			continue
		}

		follow := false
		adjusts := 0
		if strings.HasPrefix(rest, "|") {
			follow = true
			rest = rest[1:]
		} else {
			for adjusts < len(rest) && rest[adjusts] == '^' {
				adjusts++
			}
			rest = rest[adjusts:]
		}

		anchor := lineNum - adjusts
		if follow {
			if lastAnchor == 0 {
				return nil, &harness.Failure{
					Kind: harness.ConfigError,
					Msg:  fmt.Sprintf("%s:%d: continuation annotation with no preceding annotation", testFile, lineNum),
				}
			}
			anchor = lastAnchor
		} else {
			lastAnchor = anchor
		}

		kind, msg := splitKind(rest)
		expected = append(expected, harness.Diagnostic{
			LineNum: anchor,
			Kind:    kind,
			Msg:     msg,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", testFile, err)
	}
	return expected, nil
}

// findAnnotation locates the expectation marker on a line and returns
// the text following it.
func findAnnotation(line, revision string) (string, bool) {
	if i := strings.Index(line, "//["); i >= 0 {
		if j := strings.Index(line[i:], "]~"); j >= 0 {
			tag := line[i+3 : i+j]
			if revision == "" || tag != revision {
				return "", false
			}
			return line[i+j+2:], true
		}
	}
	if i := strings.Index(line, "//~"); i >= 0 {
		return line[i+3:], true
	}
	return "", false
}

// splitKind consumes a leading kind token such as ERROR or WARNING when
// present; the remainder, trimmed, is the expected message substring.
func splitKind(rest string) (harness.ErrorKind, string) {
	trimmed := strings.TrimSpace(rest)
	token, remainder, _ := strings.Cut(trimmed, " ")
	if kind := harness.KindFromToken(token); kind != harness.KindUnspecified {
		return kind, strings.TrimSpace(remainder)
	}
	return harness.KindUnspecified, trimmed
}
