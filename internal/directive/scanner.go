// Package directive reads the comment header of a test file and turns
// it into the properties that drive one case through the harness.
package directive

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"testrig/internal/domain/harness"
)

// EachDirective invokes fn with every directive line in the header of
// testFile, comment marker stripped and leading whitespace trimmed.
// A line of the form `//[tag] body` is emitted only when revision
// equals tag; `// body` is emitted for every revision. Scanning stops
// at the first line opening a function or module declaration.
func EachDirective(testFile, revision string, fn func(line string)) error {
	f, err := os.Open(testFile)
	if err != nil {
		return &harness.Failure{
			Kind: harness.MissingFile,
			Msg:  fmt.Sprintf("open test file: %v", err),
		}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ln := strings.TrimSpace(scanner.Text())
		switch {
		// Directives appear before the first declaration of the file.
		case strings.HasPrefix(ln, "fn") || strings.HasPrefix(ln, "mod"):
			return nil
		case strings.HasPrefix(ln, "//["):
			close := strings.IndexByte(ln, ']')
			if close < 0 {
				return &harness.Failure{
					Kind: harness.ConfigError,
					Msg:  fmt.Sprintf("malformed condition directive: expected `//[foo]`, found `%s`", ln),
				}
			}
			if tag := ln[3:close]; revision != "" && revision == tag {
				fn(strings.TrimLeft(ln[close+1:], " \t"))
			}
		case strings.HasPrefix(ln, "//"):
			fn(strings.TrimLeft(ln[2:], " \t"))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", testFile, err)
	}
	return nil
}
