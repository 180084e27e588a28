//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/testcontainers/testcontainers-go"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"

	"testrig/internal/app/driver"
	"testrig/internal/domain/harness"
	kafkainfra "testrig/internal/infra/kafka"
	"testrig/internal/runtest"
	"testrig/internal/testhelpers"
)

// TestPipelineEndToEnd exercises the full path a CI run takes: tests
// are discovered on disk, driven through the compile-fail pipeline with
// a stand-in compiler, and every finished case is published to Kafka.
func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline integration test in short mode")
	}
	if runtime.GOOS == "windows" {
		t.Skip("stand-in compiler requires a POSIX shell")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	kafkaContainer, err := kafkatc.Run(ctx, "confluentinc/confluent-local:7.7.0")
	if err != nil {
		t.Skipf("kafka container unavailable: %v", err)
	}
	testcontainers.CleanupContainer(t, kafkaContainer)

	brokers, err := kafkaContainer.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to obtain broker addresses: %v", err)
	}
	if len(brokers) == 0 {
		t.Fatal("no brokers returned by kafka container")
	}
	broker := brokers[0]

	const reportsTopic = "integration-case-reports"
	if err := testhelpers.WaitForKafkaBroker(ctx, broker); err != nil {
		t.Fatalf("wait for kafka broker: %v", err)
	}
	if err := testhelpers.EnsureKafkaTopic(ctx, broker, reportsTopic); err != nil {
		t.Fatalf("ensure reports topic: %v", err)
	}

	srcBase := t.TempDir()
	compiler := filepath.Join(t.TempDir(), "fakecc")
	script := "#!/bin/sh\necho 'error: mismatched types' >&2\nexit 101\n"
	if err := os.WriteFile(compiler, []byte(script), 0o755); err != nil {
		t.Fatalf("write stand-in compiler: %v", err)
	}
	cases := map[string]string{
		"reject.rs":  "// error-pattern:mismatched types\nfn main() {}\n",
		"skipped.rs": "// ignore-test\nfn main() {}\n",
	}
	for name, contents := range cases {
		if err := os.WriteFile(filepath.Join(srcBase, name), []byte(contents), 0o644); err != nil {
			t.Fatalf("write test case: %v", err)
		}
	}

	cfg := &harness.Config{
		Mode:         harness.CompileFail,
		Target:       "x86_64-unknown-linux-gnu",
		Host:         "x86_64-unknown-linux-gnu",
		StageID:      "stage2",
		CompilerPath: compiler,
		SrcBase:      srcBase,
		BuildBase:    t.TempDir(),
	}

	publisher, err := kafkainfra.NewPublisher(kafkainfra.PublisherConfig{
		Brokers: []string{broker},
		Topic:   reportsTopic,
	})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer publisher.Close()

	tests, err := driver.DiscoverTests(cfg)
	if err != nil {
		t.Fatalf("discover tests: %v", err)
	}
	if len(tests) != 2 {
		t.Fatalf("discovered %d tests, want 2", len(tests))
	}

	service := driver.NewService(cfg, runtest.New(cfg, nil), publisher)
	summary := service.Run(ctx, tests, 2)
	if summary.Passed != 1 || summary.Failed != 0 || summary.Ignored != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{broker},
		Topic:   reportsTopic,
		GroupID: "pipeline-integration-reader",
	})
	defer reader.Close()

	outcomes := make(map[string]string, len(cases))
	for i := 0; i < len(cases); i++ {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			t.Fatalf("read report %d: %v", i, err)
		}
		var envelope struct {
			Name    string `json:"name"`
			Mode    string `json:"mode"`
			Outcome string `json:"outcome"`
		}
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		if envelope.Mode != "compile-fail" {
			t.Fatalf("report mode = %q", envelope.Mode)
		}
		outcomes[filepath.Base(envelope.Name)] = envelope.Outcome
	}

	if outcomes["reject.rs"] != "pass" {
		t.Errorf("reject.rs outcome = %q, want pass", outcomes["reject.rs"])
	}
	if outcomes["skipped.rs"] != "ignored" {
		t.Errorf("skipped.rs outcome = %q, want ignored", outcomes["skipped.rs"])
	}
}
