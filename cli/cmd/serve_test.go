package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/adapter/webhook"
	"github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/journal"
	"github.com/pithecene-io/sluice/wire"
)

// applyFlagsViaApp parses args through the real serve flag definitions
// and applies them to cfg, without running the pipeline.
func applyFlagsViaApp(t *testing.T, cfg *config.Config, args ...string) {
	t.Helper()

	serveCmd := ServeCommand()
	applied := false
	serveCmd.Action = func(c *cli.Context) error {
		applyServeFlags(cfg, c)
		applied = true
		return nil
	}

	app := cli.NewApp()
	app.Commands = []*cli.Command{serveCmd}
	if err := app.Run(append([]string{"sluice", "serve"}, args...)); err != nil {
		t.Fatalf("app run failed: %v", err)
	}
	if !applied {
		t.Fatal("serve action was not invoked")
	}
}

func TestApplyServeFlags_CLIOverridesConfig(t *testing.T) {
	cfg := &config.Config{Strategy: "all-sequential", SnapshotCapacity: 4}
	applyFlagsViaApp(t, cfg,
		"--strategy", "all-parallel",
		"--max-retries", "9",
		"--stdin",
		"--tap-interval", "2s",
		"--sink-webhook", "https://hooks.example.com/sluice",
	)

	if cfg.Strategy != "all-parallel" {
		t.Errorf("Strategy = %q, want CLI override all-parallel", cfg.Strategy)
	}
	if cfg.SnapshotCapacity != 4 {
		t.Errorf("SnapshotCapacity = %d, unset flag should leave config value", cfg.SnapshotCapacity)
	}
	if cfg.Retry.MaxRetries != 9 {
		t.Errorf("Retry.MaxRetries = %d, want 9", cfg.Retry.MaxRetries)
	}
	if !cfg.Feeds.Stdin {
		t.Error("Feeds.Stdin should be enabled by --stdin")
	}
	if cfg.Journal.Interval.Duration != 2*time.Second {
		t.Errorf("Journal.Interval = %v, want 2s", cfg.Journal.Interval.Duration)
	}
	if cfg.Sinks.Webhook.URL != "https://hooks.example.com/sluice" {
		t.Errorf("Sinks.Webhook.URL = %q", cfg.Sinks.Webhook.URL)
	}
}

func TestApplyServeFlags_UnsetFlagsLeaveConfig(t *testing.T) {
	cfg := &config.Config{RunID: "from-config", Strategy: "hybrid"}
	cfg.Feeds.Generator.Count = 12

	applyFlagsViaApp(t, cfg)

	if cfg.RunID != "from-config" {
		t.Errorf("RunID = %q, want config value preserved", cfg.RunID)
	}
	if cfg.Strategy != "hybrid" {
		t.Errorf("Strategy = %q, want config value preserved", cfg.Strategy)
	}
	if cfg.Feeds.Generator.Count != 12 {
		t.Errorf("Generator.Count = %d, want config value preserved", cfg.Feeds.Generator.Count)
	}
}

func TestNewRunID(t *testing.T) {
	id := newRunID()
	if !strings.HasPrefix(id, "run-") {
		t.Errorf("run id %q should have run- prefix", id)
	}
	if len(id) <= len("run-") {
		t.Errorf("run id %q should carry a suffix", id)
	}
}

func TestBuildFeeds(t *testing.T) {
	cfg := &config.Config{}
	feeds, err := buildFeeds(cfg, nil)
	if err != nil {
		t.Fatalf("buildFeeds: %v", err)
	}
	if len(feeds) != 0 {
		t.Errorf("empty config should build no feeds, got %d", len(feeds))
	}

	cfg.Feeds.Stdin = true
	cfg.Feeds.Generator.Count = 3
	feeds, err = buildFeeds(cfg, nil)
	if err != nil {
		t.Fatalf("buildFeeds: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(feeds))
	}
	if feeds[0].Name() != "stdin" {
		t.Errorf("first feed = %q, want stdin", feeds[0].Name())
	}
	if feeds[1].Name() != "generator" {
		t.Errorf("second feed = %q, want generator", feeds[1].Name())
	}
}

func TestBuildFeeds_InvalidRedisURL(t *testing.T) {
	cfg := &config.Config{}
	cfg.Feeds.Redis.URL = "://not-a-url"

	if _, err := buildFeeds(cfg, nil); err == nil {
		t.Error("expected error for invalid redis URL")
	}
}

func TestBuildPublisher(t *testing.T) {
	cfg := &config.Config{}
	pub, err := buildPublisher(cfg)
	if err != nil {
		t.Fatalf("buildPublisher: %v", err)
	}
	if pub != nil {
		t.Error("no sinks configured should yield nil publisher")
	}

	cfg.Sinks.Webhook.URL = "https://hooks.example.com/sluice"
	pub, err = buildPublisher(cfg)
	if err != nil {
		t.Fatalf("buildPublisher: %v", err)
	}
	if _, ok := pub.(*webhook.Publisher); !ok {
		t.Errorf("single sink should yield the publisher itself, got %T", pub)
	}

	cfg.Sinks.Redis.URL = "redis://localhost:6379/0"
	pub, err = buildPublisher(cfg)
	if err != nil {
		t.Fatalf("buildPublisher: %v", err)
	}
	fanout, ok := pub.(*adapter.Fanout)
	if !ok {
		t.Fatalf("two sinks should yield a fanout, got %T", pub)
	}
	if fanout.Len() != 2 {
		t.Errorf("fanout len = %d, want 2", fanout.Len())
	}
}

func TestRetriesOrDefault(t *testing.T) {
	if got := retriesOrDefault(nil, 3); got != 3 {
		t.Errorf("nil should map to default, got %d", got)
	}
	zero := 0
	if got := retriesOrDefault(&zero, 3); got != 0 {
		t.Errorf("explicit 0 should stay 0, got %d", got)
	}
	seven := 7
	if got := retriesOrDefault(&seven, 3); got != 7 {
		t.Errorf("explicit 7 should stay 7, got %d", got)
	}
}

func TestBuildGroupKey_TypeKeyed(t *testing.T) {
	cfg := &config.Config{}
	if buildGroupKey(cfg) != nil {
		t.Error("empty key should defer to the runtime default")
	}
	cfg.Group.Key = "type"
	if buildGroupKey(cfg) != nil {
		t.Error("type key should defer to the runtime default")
	}
}

func TestBuildGroupKey_FieldKeyed(t *testing.T) {
	cfg := &config.Config{}
	cfg.Group.Key = "field:tenant"

	keyOf := buildGroupKey(cfg)
	if keyOf == nil {
		t.Fatal("field key should build a key func")
	}

	env := wire.IntentEnvelope{
		Type:    "order.created",
		Payload: map[string]any{"tenant": "acme"},
	}
	if got := keyOf(env.Materialize()); got != "acme" {
		t.Errorf("key = %q, want payload field value acme", got)
	}

	bare := wire.IntentEnvelope{Type: "order.created", Payload: map[string]any{}}
	if got := keyOf(bare.Materialize()); got != "order.created" {
		t.Errorf("missing field should fall back to type, got %q", got)
	}

	if got := keyOf(42); got != "int" {
		t.Errorf("non-envelope should group by runtime type, got %q", got)
	}
}

func TestBuildServeJournal(t *testing.T) {
	cfg := &config.Config{RunID: "run-j"}
	j, err := buildServeJournal(cfg)
	if err != nil {
		t.Fatalf("buildServeJournal: %v", err)
	}
	if j != nil {
		t.Error("empty backend should disable journaling")
	}

	cfg.Journal.Backend = "fs"
	cfg.Journal.Root = t.TempDir()
	j, err = buildServeJournal(cfg)
	if err != nil {
		t.Fatalf("buildServeJournal: %v", err)
	}
	if j == nil {
		t.Fatal("fs backend should open a journal")
	}
	if j.Backend() != journal.BackendFS {
		t.Errorf("backend = %q, want fs", j.Backend())
	}
}

func newServeTestApp() *cli.App {
	app := cli.NewApp()
	app.Commands = []*cli.Command{ServeCommand()}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {} // suppress os.Exit
	return app
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var coder cli.ExitCoder
	if !errors.As(err, &coder) {
		t.Fatalf("expected exit coder, got %v", err)
	}
	return coder.ExitCode()
}

func TestServeAction_GeneratorRunWritesJournalAndReport(t *testing.T) {
	root := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "report.json")

	app := newServeTestApp()
	err := app.Run([]string{"sluice", "serve",
		"--generate", "3",
		"--run-id", "run-serve-cli",
		"--strategy", "all-sequential",
		"--journal", "fs",
		"--journal-root", root,
		"--report", reportPath,
		"--quiet",
		"--log-level", "error",
	})
	if code := exitCodeOf(t, err); code != 0 {
		t.Fatalf("exit code = %d, want 0 (err: %v)", code, err)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if report["run_id"] != "run-serve-cli" {
		t.Errorf("report run_id = %v", report["run_id"])
	}
	if report["outcome"] != "completed" {
		t.Errorf("report outcome = %v, want completed", report["outcome"])
	}
	if report["exit_code"] != float64(0) {
		t.Errorf("report exit_code = %v, want 0", report["exit_code"])
	}
	finalState, ok := report["final_state"].(map[string]any)
	if !ok || finalState["n"] != float64(3) {
		t.Errorf("report final_state = %v, want n=3", report["final_state"])
	}

	// The journaled run survives the process: re-open and query it.
	j, err := journal.NewReader(journal.Config{Backend: journal.BackendFS, Root: root})
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	ctx := context.Background()

	rec, err := j.LatestRunMetrics(ctx, "run-serve-cli")
	if err != nil {
		t.Fatalf("LatestRunMetrics: %v", err)
	}
	if rec.Outcome != "completed" {
		t.Errorf("journaled outcome = %q, want completed", rec.Outcome)
	}
	if rec.IntentsDispatched != 3 {
		t.Errorf("journaled intents = %d, want 3", rec.IntentsDispatched)
	}
	if rec.JournalBackend != "fs" {
		t.Errorf("journaled backend = %q, want fs", rec.JournalBackend)
	}

	st, err := j.LatestState(ctx, "run-serve-cli")
	if err != nil {
		t.Fatalf("LatestState: %v", err)
	}
	if st.Seq != 4 {
		t.Errorf("latest state seq = %d, want 4 (seed + 3 intents)", st.Seq)
	}
	if st.State["n"] != float64(3) {
		t.Errorf("latest state n = %v, want 3", st.State["n"])
	}
}

func TestServeAction_NoFeedsIsInvalidInput(t *testing.T) {
	app := newServeTestApp()
	err := app.Run([]string{"sluice", "serve", "--run-id", "run-nofeeds"})
	if code := exitCodeOf(t, err); code != 3 {
		t.Errorf("exit code = %d, want 3 for missing feeds", code)
	}
	if err == nil || !strings.Contains(err.Error(), "no feeds configured") {
		t.Errorf("error should explain missing feeds, got: %v", err)
	}
}

func TestServeAction_InvalidStrategyIsInvalidInput(t *testing.T) {
	app := newServeTestApp()
	err := app.Run([]string{"sluice", "serve",
		"--generate", "1",
		"--strategy", "sideways",
	})
	if code := exitCodeOf(t, err); code != 3 {
		t.Errorf("exit code = %d, want 3 for bad strategy", code)
	}
}

func TestServeAction_ConfigFileProvidesFeeds(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sluice.yaml")
	content := "run_id: run-from-config\nstrategy: all-sequential\nfeeds:\n  generator:\n    count: 2\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newServeTestApp()
	err := app.Run([]string{"sluice", "serve",
		"--config", configPath,
		"--quiet",
		"--log-level", "error",
	})
	if code := exitCodeOf(t, err); code != 0 {
		t.Fatalf("exit code = %d, want 0 (err: %v)", code, err)
	}
}

func TestServeAction_MissingConfigFile(t *testing.T) {
	app := newServeTestApp()
	err := app.Run([]string{"sluice", "serve",
		"--config", "/nonexistent/sluice.yaml",
	})
	if code := exitCodeOf(t, err); code != 3 {
		t.Errorf("exit code = %d, want 3 for missing config file", code)
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"error", "error"},
		{"", "info"},
	}
	for _, tt := range tests {
		if got := logLevel(tt.in).String(); got != tt.want {
			t.Errorf("logLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
