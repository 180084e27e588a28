package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"testrig/internal/domain/harness"
)

const (
	defaultStageID      = "stage2"
	defaultKafkaTopic   = "testrig-case-reports"
	defaultRunTimeout   = 5 * time.Minute
	containerWorkdir    = "/testrig"
	compatLayerVariable = "__COMPAT_LAYER"
)

// appConfig is everything main needs: the harness configuration from
// flags plus the infrastructure settings from the environment.
type appConfig struct {
	harness      *harness.Config
	maxParallel  int
	kafkaBrokers []string
	kafkaTopic   string
	runTimeout   time.Duration
}

func loadAppConfig(args []string) (*appConfig, error) {
	fs := flag.NewFlagSet("testrig", flag.ContinueOnError)
	cfg := &harness.Config{}

	mode := fs.String("mode", "", "test suite mode: compile-fail, run-fail, run-pass, pretty, run-make, or ui")
	fs.StringVar(&cfg.Target, "target", "x86_64-unknown-linux-gnu", "triple tests are compiled for")
	fs.StringVar(&cfg.Host, "host", "", "triple the toolchain runs on (defaults to target)")
	fs.StringVar(&cfg.StageID, "stage-id", defaultStageID, "build stage identifier for artifact names")
	fs.StringVar(&cfg.CompilerPath, "compiler-path", "", "path to the compiler under test")
	fs.StringVar(&cfg.DocPath, "doc-path", "", "path to the documentation tool")
	fs.StringVar(&cfg.NodeJS, "nodejs", "", "path to a NodeJS binary for JavaScript targets")
	fs.StringVar(&cfg.RemoteClient, "remote-test-client", "", "path to the remote test client")
	fs.StringVar(&cfg.Linker, "linker", "", "linker handed to every compile")
	fs.StringVar(&cfg.Python, "python", "python3", "python interpreter for make recipes")
	fs.StringVar(&cfg.CC, "cc", "cc", "C compiler for make recipes")
	fs.StringVar(&cfg.CXX, "cxx", "c++", "C++ compiler for make recipes")
	fs.StringVar(&cfg.CFlags, "cflags", "", "C compiler flags for make recipes")
	fs.StringVar(&cfg.AR, "ar", "ar", "archiver for make recipes")
	fs.StringVar(&cfg.SrcBase, "src-base", "", "directory tests are discovered under")
	fs.StringVar(&cfg.BuildBase, "build-base", "", "directory build artifacts are written to")
	fs.StringVar(&cfg.CompileLibPath, "compile-lib-path", "", "library search path for the compile phase")
	fs.StringVar(&cfg.RunLibPath, "run-lib-path", "", "library search path for the run phase")
	fs.StringVar(&cfg.TargetFlags, "target-compile-flags", "", "extra compiler flags for target builds")
	fs.StringVar(&cfg.HostFlags, "host-compile-flags", "", "extra compiler flags for host builds")
	fs.BoolVar(&cfg.SystemLLVM, "system-llvm", false, "toolchain links a system LLVM")
	fs.StringVar(&cfg.LLVMVersion, "llvm-version", "", "LLVM version of the toolchain")
	fs.StringVar(&cfg.LLVMComponents, "llvm-components", "", "LLVM components for make recipes")
	fs.StringVar(&cfg.LLVMCXXFlags, "llvm-cxxflags", "", "LLVM C++ flags for make recipes")
	fs.StringVar(&cfg.RunTool, "runtool", "", "tool wrapping executed programs")
	fs.StringVar(&cfg.ContainerImage, "container-image", "", "run compiled programs inside this container image")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "log every spawned command and its output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Filter = fs.Arg(0)

	parsed, err := harness.ParseMode(*mode)
	if err != nil {
		return nil, err
	}
	cfg.Mode = parsed
	if cfg.Host == "" {
		cfg.Host = cfg.Target
	}
	if cfg.CompilerPath == "" {
		return nil, fmt.Errorf("-compiler-path is required")
	}
	if cfg.SrcBase == "" || cfg.BuildBase == "" {
		return nil, fmt.Errorf("-src-base and -build-base are required")
	}

	return &appConfig{
		harness:      cfg,
		maxParallel:  parseMaxParallel(os.Getenv("TESTRIG_MAX_PARALLEL")),
		kafkaBrokers: parseBrokerList(os.Getenv("TESTRIG_KAFKA_BROKERS")),
		kafkaTopic:   envOrDefault("TESTRIG_KAFKA_TOPIC", defaultKafkaTopic),
		runTimeout:   parseDuration(os.Getenv("TESTRIG_RUN_TIMEOUT"), defaultRunTimeout),
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseBrokerList(raw string) []string {
	fields := strings.Split(raw, ",")
	brokers := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func parseMaxParallel(raw string) int {
	if raw == "" {
		return runtime.NumCPU()
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return runtime.NumCPU()
	}
	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
