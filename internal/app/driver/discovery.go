package driver

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"testrig/internal/domain/harness"
)

// ignoreDirMarker, placed as a file inside a directory, excludes that
// directory and everything under it from discovery.
const ignoreDirMarker = "testrig-ignore-dir"

// DiscoverTests walks the source base and returns the test cases of the
// configured mode, in walk order. Make tests are directories carrying a
// Makefile; every other mode tests single source files. Directories of
// auxiliary crates are never tests themselves. A non-empty cfg.Filter
// keeps only paths containing it.
func DiscoverTests(cfg *harness.Config) ([]harness.TestPaths, error) {
	var tests []harness.TestPaths

	err := filepath.WalkDir(cfg.SrcBase, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == cfg.SrcBase {
				return nil
			}
			if d.Name() == "auxiliary" {
				return filepath.SkipDir
			}
			if _, err := os.Stat(filepath.Join(path, ignoreDirMarker)); err == nil {
				return filepath.SkipDir
			}
			if cfg.Mode == harness.RunMake {
				if _, err := os.Stat(filepath.Join(path, "Makefile")); err == nil {
					tests = append(tests, makePaths(cfg, path))
					return filepath.SkipDir
				}
			}
			return nil
		}

		if cfg.Mode == harness.RunMake {
			return nil
		}
		if !isTestFile(d.Name()) {
			return nil
		}
		tests = append(tests, makePaths(cfg, path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", cfg.SrcBase, err)
	}

	if cfg.Filter != "" {
		kept := tests[:0]
		for _, t := range tests {
			if strings.Contains(t.File, cfg.Filter) {
				kept = append(kept, t)
			}
		}
		tests = kept
	}

	for _, t := range tests {
		if err := os.MkdirAll(t.BuildDir(cfg), 0o755); err != nil {
			return nil, fmt.Errorf("create build dir: %w", err)
		}
	}
	return tests, nil
}

func makePaths(cfg *harness.Config, file string) harness.TestPaths {
	rel, err := filepath.Rel(cfg.SrcBase, filepath.Dir(file))
	if err != nil || rel == "." {
		rel = ""
	}
	return harness.TestPaths{
		File:        file,
		Base:        cfg.SrcBase,
		RelativeDir: rel,
	}
}

func isTestFile(name string) bool {
	// Hidden files and editor droppings are never tests.
	for _, prefix := range []string{".", "#", "~"} {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	return strings.HasSuffix(name, ".rs") || strings.HasSuffix(name, ".rc")
}
