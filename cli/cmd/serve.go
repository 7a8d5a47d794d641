package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/sluice/adapter"
	redisadapter "github.com/pithecene-io/sluice/adapter/redis"
	"github.com/pithecene-io/sluice/adapter/webhook"
	"github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/dispatch"
	"github.com/pithecene-io/sluice/feed"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/journal"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/policy"
	"github.com/pithecene-io/sluice/runtime"
	"github.com/pithecene-io/sluice/types"
	"github.com/pithecene-io/sluice/wire"
)

// ServeCommand returns the serve command.
// This is the only command that executes a run.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the intent pipeline until its feeds drain",
		Flags: []cli.Flag{
			// Run identity flags
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to sluice.yaml config file",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (default: generated)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write the run report JSON to this path (- for stderr)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
			// Pipeline flags
			&cli.StringFlag{
				Name:  "strategy",
				Usage: "Dispatch strategy: hybrid, all-parallel, all-sequential",
			},
			&cli.StringFlag{
				Name:  "group-key",
				Usage: "Grouped-lane key: type or field:<name>",
			},
			&cli.IntFlag{
				Name:  "group-capacity",
				Usage: "Per-group queue capacity",
			},
			&cli.IntFlag{
				Name:  "sequential-capacity",
				Usage: "Sequential lane queue capacity",
			},
			&cli.IntFlag{
				Name:  "intake-capacity",
				Usage: "Intake channel capacity",
			},
			&cli.IntFlag{
				Name:  "snapshot-capacity",
				Usage: "Snapshot ring capacity",
			},
			&cli.IntFlag{
				Name:  "max-parallel",
				Usage: "Max concurrent handlers (0 = unbounded)",
			},
			// Retry flags
			&cli.StringFlag{
				Name:  "retry-mode",
				Usage: "Retry mode: transient, always, never, max",
			},
			&cli.Int64Flag{
				Name:  "max-retries",
				Usage: "Retry budget for the transient and max modes",
			},
			// Feed flags
			&cli.BoolFlag{
				Name:  "stdin",
				Usage: "Read framed intent envelopes from stdin",
			},
			&cli.IntFlag{
				Name:  "generate",
				Usage: "Emit N synthetic intents",
			},
			&cli.DurationFlag{
				Name:  "generate-interval",
				Usage: "Pause between synthetic intents",
			},
			&cli.StringFlag{
				Name:  "feed-redis",
				Usage: "Subscribe to intent envelopes on this Redis URL",
			},
			&cli.StringFlag{
				Name:  "feed-redis-channel",
				Usage: "Redis intent channel (default: sluice:intents)",
			},
			// Sink flags
			&cli.StringFlag{
				Name:  "sink-redis",
				Usage: "Publish event records to this Redis URL",
			},
			&cli.StringFlag{
				Name:  "sink-redis-channel",
				Usage: "Redis event channel (default: sluice:events)",
			},
			&cli.StringFlag{
				Name:  "sink-webhook",
				Usage: "POST event records to this webhook URL",
			},
			// Journal flags
			&cli.StringFlag{
				Name:  "journal",
				Usage: "Journal backend: fs, s3 (default: journaling off)",
			},
			&cli.StringFlag{
				Name:  "journal-root",
				Usage: "Filesystem journal root (fs backend)",
			},
			&cli.StringFlag{
				Name:  "s3-bucket",
				Usage: "S3 bucket name (s3 backend)",
			},
			&cli.StringFlag{
				Name:  "s3-prefix",
				Usage: "S3 key prefix (s3 backend)",
			},
			&cli.StringFlag{
				Name:  "s3-region",
				Usage: "S3 region (s3 backend)",
			},
			&cli.StringFlag{
				Name:  "s3-endpoint",
				Usage: "Custom S3 endpoint for S3-compatible providers",
			},
			&cli.BoolFlag{
				Name:  "s3-path-style",
				Usage: "Force path-style S3 addressing",
			},
			&cli.IntFlag{
				Name:  "tap-batch",
				Usage: "Journal write batch size",
			},
			&cli.DurationFlag{
				Name:  "tap-interval",
				Usage: "Journal flush interval (negative disables timed flushes)",
			},
			// Log flags
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "Emit JSON logs instead of console logs",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("config: %v", err), runtime.ExitCodeInvalidInput)
		}
		cfg = loaded
	}
	applyServeFlags(cfg, c)

	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), runtime.ExitCodeInvalidInput)
	}
	if cfg.RunID == "" {
		cfg.RunID = newRunID()
	}

	strategy, err := dispatch.ParseStrategy(cfg.Strategy)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), runtime.ExitCodeInvalidInput)
	}
	retry, err := policy.FromConfig(cfg.Retry.Mode, cfg.Retry.MaxRetries)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), runtime.ExitCodeInvalidInput)
	}

	logger := buildLogger(cfg)
	sink := log.NewZapSink(logger)

	feeds, err := buildFeeds(cfg, sink)
	if err != nil {
		return cli.Exit(fmt.Sprintf("feeds: %v", err), runtime.ExitCodeInvalidInput)
	}
	if len(feeds) == 0 {
		return cli.Exit("no feeds configured (use --stdin, --generate, or --feed-redis)", runtime.ExitCodeInvalidInput)
	}
	defer closeFeeds(feeds)

	publisher, err := buildPublisher(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("sinks: %v", err), runtime.ExitCodeInvalidInput)
	}
	if publisher != nil {
		defer iox.DiscardClose(publisher)
	}

	jrnl, err := buildServeJournal(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("journal: %v", err), runtime.ExitCodeInvalidInput)
	}

	daemon, err := runtime.New(runtime.Config{
		RunID:              cfg.RunID,
		Strategy:           strategy,
		GroupKey:           buildGroupKey(cfg),
		IntakeCapacity:     cfg.IntakeCapacity,
		SnapshotCapacity:   cfg.SnapshotCapacity,
		GroupCapacity:      cfg.Group.Capacity,
		SequentialCapacity: cfg.SequentialCapacity,
		MaxParallel:        cfg.MaxParallel,
		Retry:              retry,
		Feeds:              feeds,
		Publisher:          publisher,
		Journal:            jrnl,
		TapBatch:           cfg.Journal.Batch,
		TapInterval:        cfg.Journal.Interval.Duration,
		Logger:             logger,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), runtime.ExitCodeInvalidInput)
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	result, err := daemon.Execute(ctx)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	exitCode := runtime.ExitCodeFor(result.Outcome.Status)

	if !c.Bool("quiet") {
		printRunResult(result)
	}

	if path := c.String("report"); path != "" {
		report := runtime.BuildRunReport(result, exitCode)
		if err := runtime.WriteRunReport(report, path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: report write failed: %v\n", err)
		}
	}

	return cli.Exit("", exitCode)
}

// applyServeFlags overlays set flags onto cfg. CLI flags always override
// config file values.
func applyServeFlags(cfg *config.Config, c *cli.Context) {
	if c.IsSet("run-id") {
		cfg.RunID = c.String("run-id")
	}
	if c.IsSet("strategy") {
		cfg.Strategy = c.String("strategy")
	}
	if c.IsSet("group-key") {
		cfg.Group.Key = c.String("group-key")
	}
	if c.IsSet("group-capacity") {
		cfg.Group.Capacity = c.Int("group-capacity")
	}
	if c.IsSet("sequential-capacity") {
		cfg.SequentialCapacity = c.Int("sequential-capacity")
	}
	if c.IsSet("intake-capacity") {
		cfg.IntakeCapacity = c.Int("intake-capacity")
	}
	if c.IsSet("snapshot-capacity") {
		cfg.SnapshotCapacity = c.Int("snapshot-capacity")
	}
	if c.IsSet("max-parallel") {
		cfg.MaxParallel = c.Int("max-parallel")
	}
	if c.IsSet("retry-mode") {
		cfg.Retry.Mode = c.String("retry-mode")
	}
	if c.IsSet("max-retries") {
		cfg.Retry.MaxRetries = c.Int64("max-retries")
	}
	if c.IsSet("stdin") {
		cfg.Feeds.Stdin = c.Bool("stdin")
	}
	if c.IsSet("generate") {
		cfg.Feeds.Generator.Count = c.Int("generate")
	}
	if c.IsSet("generate-interval") {
		cfg.Feeds.Generator.Interval = config.Duration{Duration: c.Duration("generate-interval")}
	}
	if c.IsSet("feed-redis") {
		cfg.Feeds.Redis.URL = c.String("feed-redis")
	}
	if c.IsSet("feed-redis-channel") {
		cfg.Feeds.Redis.Channel = c.String("feed-redis-channel")
	}
	if c.IsSet("sink-redis") {
		cfg.Sinks.Redis.URL = c.String("sink-redis")
	}
	if c.IsSet("sink-redis-channel") {
		cfg.Sinks.Redis.Channel = c.String("sink-redis-channel")
	}
	if c.IsSet("sink-webhook") {
		cfg.Sinks.Webhook.URL = c.String("sink-webhook")
	}
	if c.IsSet("journal") {
		cfg.Journal.Backend = c.String("journal")
	}
	if c.IsSet("journal-root") {
		cfg.Journal.Root = c.String("journal-root")
	}
	if c.IsSet("s3-bucket") {
		cfg.Journal.S3.Bucket = c.String("s3-bucket")
	}
	if c.IsSet("s3-prefix") {
		cfg.Journal.S3.Prefix = c.String("s3-prefix")
	}
	if c.IsSet("s3-region") {
		cfg.Journal.S3.Region = c.String("s3-region")
	}
	if c.IsSet("s3-endpoint") {
		cfg.Journal.S3.Endpoint = c.String("s3-endpoint")
	}
	if c.IsSet("s3-path-style") {
		cfg.Journal.S3.PathStyle = c.Bool("s3-path-style")
	}
	if c.IsSet("tap-batch") {
		cfg.Journal.Batch = c.Int("tap-batch")
	}
	if c.IsSet("tap-interval") {
		cfg.Journal.Interval = config.Duration{Duration: c.Duration("tap-interval")}
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-json") {
		cfg.Log.JSON = c.Bool("log-json")
	}
}

func newRunID() string {
	return "run-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

func buildLogger(cfg *config.Config) *log.Logger {
	level := logLevel(cfg.Log.Level)
	if cfg.Log.JSON {
		return log.NewLoggerAt(level, cfg.RunID)
	}
	return log.NewConsoleLogger(level, cfg.RunID)
}

func logLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// buildFeeds assembles the run's intake sources from cfg. An empty
// result means no feed was configured at all.
func buildFeeds(cfg *config.Config, sink log.Sink) ([]feed.Source, error) {
	var feeds []feed.Source

	if cfg.Feeds.Stdin {
		src, err := feed.NewStreamSource(feed.StreamConfig{
			Reader: os.Stdin,
			Name:   "stdin",
			Sink:   sink,
		})
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, src)
	}

	if n := cfg.Feeds.Generator.Count; n > 0 {
		src, err := feed.NewGeneratorSource(feed.GeneratorConfig{
			Count:       n,
			Interval:    cfg.Feeds.Generator.Interval.Duration,
			Types:       cfg.Feeds.Generator.Types,
			Concurrency: cfg.Feeds.Generator.Concurrency,
		})
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, src)
	}

	if url := cfg.Feeds.Redis.URL; url != "" {
		src, err := feed.NewRedisSource(feed.RedisConfig{
			URL:     url,
			Channel: cfg.Feeds.Redis.Channel,
			Sink:    sink,
		})
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, src)
	}

	return feeds, nil
}

func closeFeeds(feeds []feed.Source) {
	for _, src := range feeds {
		_ = src.Close()
	}
}

// buildPublisher assembles the event sink from cfg. Nil means no sink
// was configured; multiple sinks fan out.
func buildPublisher(cfg *config.Config) (adapter.Publisher, error) {
	var pubs []adapter.Publisher

	if url := cfg.Sinks.Redis.URL; url != "" {
		pub, err := redisadapter.New(redisadapter.Config{
			URL:     url,
			Channel: cfg.Sinks.Redis.Channel,
			Timeout: cfg.Sinks.Redis.Timeout.Duration,
			Retries: retriesOrDefault(cfg.Sinks.Redis.Retries, redisadapter.DefaultRetries),
		})
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}

	if url := cfg.Sinks.Webhook.URL; url != "" {
		pub, err := webhook.New(webhook.Config{
			URL:     url,
			Headers: cfg.Sinks.Webhook.Headers,
			Timeout: cfg.Sinks.Webhook.Timeout.Duration,
			Retries: retriesOrDefault(cfg.Sinks.Webhook.Retries, webhook.DefaultRetries),
		})
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}

	switch len(pubs) {
	case 0:
		return nil, nil
	case 1:
		return pubs[0], nil
	default:
		return adapter.NewFanout(pubs...), nil
	}
}

// retriesOrDefault maps an absent config value to the adapter default.
// An explicit 0 means publish once with no retries.
func retriesOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func buildServeJournal(cfg *config.Config) (*journal.Journal, error) {
	if cfg.Journal.Backend == "" {
		return nil, nil
	}
	return journal.New(journal.Config{
		RunID:   cfg.RunID,
		Backend: journal.Backend(cfg.Journal.Backend),
		Root:    cfg.Journal.Root,
		S3: journal.S3Config{
			Bucket:       cfg.Journal.S3.Bucket,
			Prefix:       cfg.Journal.S3.Prefix,
			Region:       cfg.Journal.S3.Region,
			Endpoint:     cfg.Journal.S3.Endpoint,
			UsePathStyle: cfg.Journal.S3.PathStyle,
		},
	})
}

// buildGroupKey resolves the configured group key. Nil lets the runtime
// default to envelope-type grouping.
func buildGroupKey(cfg *config.Config) func(types.Intent) string {
	field := cfg.Group.GroupKeyField()
	if field == "" {
		return nil
	}
	return func(it types.Intent) string {
		env, ok := wire.EnvelopeOf(it)
		if !ok {
			return fmt.Sprintf("%T", it)
		}
		if v, ok := env.Payload[field]; ok {
			return fmt.Sprintf("%v", v)
		}
		// Missing field falls back to type grouping.
		return env.Type
	}
}

func printRunResult(result *runtime.RunResult) {
	fmt.Printf("\nrun_id=%s, outcome=%s, duration=%s\n",
		result.RunID,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)

	fmt.Printf("\n=== Run Result ===\n")
	fmt.Printf("Run ID:       %s\n", result.RunID)
	fmt.Printf("Outcome:      %s\n", result.Outcome.Status)
	fmt.Printf("Message:      %s\n", result.Outcome.Message)
	fmt.Printf("Duration:     %s\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Snapshots:    %d\n", result.Snapshots)
	fmt.Printf("Events:       %d\n", result.Events)

	m := result.Metrics
	fmt.Printf("\n=== Pipeline Stats ===\n")
	fmt.Printf("Intents:          %d\n", m.IntentsDispatched)
	lanes := make([]string, 0, len(m.IntentsByLane))
	for lane := range m.IntentsByLane {
		lanes = append(lanes, lane)
	}
	sort.Strings(lanes)
	for _, lane := range lanes {
		fmt.Printf("  %-15s %d\n", lane+":", m.IntentsByLane[lane])
	}
	fmt.Printf("Changes Folded:   %d\n", m.ChangesFolded)
	fmt.Printf("Retries:          %d\n", m.Retries)
	fmt.Printf("Handler Errors:   %d\n", m.HandlerErrors)
	fmt.Printf("Dropped:          %d\n", m.SnapshotsDropped)

	if result.JournalBackend != "" {
		fmt.Printf("\n=== Journal ===\n")
		fmt.Printf("Backend:      %s\n", result.JournalBackend)
		fmt.Printf("Batches:      %d\n", result.Tap.Batches)
		fmt.Printf("Records:      %d\n", result.Tap.Records)
		fmt.Printf("Failures:     %d\n", result.Tap.Failures)
	}

	if result.FeedErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: feed failed: %v\n", result.FeedErr)
	}
}
