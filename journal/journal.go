// Package journal persists the pipeline's observable output with Lode.
//
// Three datasets record a run: snapshots (every folded state), events
// (one-shot events), and run metrics (one cumulative record per run).
// All three are Hive-partitioned by run_id with a JSONL codec, so runs
// can be inspected and aggregated after the fact.
package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/sluice/wire"
)

// Dataset IDs. One journal owns all three.
const (
	DatasetSnapshots  = "sluice_snapshots"
	DatasetEvents     = "sluice_events"
	DatasetRunMetrics = "sluice_run_metrics"
)

// Backend selects the storage backing a journal.
type Backend string

const (
	// BackendFS stores under a local directory.
	BackendFS Backend = "fs"
	// BackendMemory stores in process memory. Testing only.
	BackendMemory Backend = "memory"
	// BackendS3 stores in an S3 bucket (or S3-compatible endpoint).
	BackendS3 Backend = "s3"
)

// DefaultRoot is the default filesystem root for BackendFS.
const DefaultRoot = "./journal"

// ErrNoRunID is returned when a journal is built without a run ID.
var ErrNoRunID = errors.New("journal: run ID required")

// Config configures a Journal.
type Config struct {
	// RunID is the partition key for every record. Required for
	// writing; readers leave it empty and filter per query.
	RunID string
	// Backend selects storage (default: fs).
	Backend Backend
	// Root is the filesystem root for BackendFS (default: ./journal).
	Root string
	// S3 configures BackendS3.
	S3 S3Config
}

// Journal writes pipeline records to Lode datasets.
type Journal struct {
	cfg       Config
	snapshots lode.Dataset
	events    lode.Dataset
	metrics   lode.Dataset
}

// New creates a Journal with the backend named in cfg.
func New(cfg Config) (*Journal, error) {
	cfg, factory, err := storeFactory(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithFactory(cfg, factory)
}

// NewReader opens a Journal for querying. Unlike New, no run ID is
// required; queries name the run they filter on.
func NewReader(cfg Config) (*Journal, error) {
	cfg, factory, err := storeFactory(cfg)
	if err != nil {
		return nil, err
	}
	return openDatasets(cfg, factory)
}

// storeFactory resolves cfg.Backend to a Lode store factory.
func storeFactory(cfg Config) (Config, lode.StoreFactory, error) {
	switch cfg.Backend {
	case "", BackendFS:
		cfg.Backend = BackendFS
		if cfg.Root == "" {
			cfg.Root = DefaultRoot
		}
		return cfg, lode.NewFSFactory(cfg.Root), nil
	case BackendMemory:
		return cfg, lode.NewMemoryFactory(), nil
	case BackendS3:
		factory, err := newS3Factory(cfg.S3)
		if err != nil {
			return cfg, nil, err
		}
		return cfg, factory, nil
	default:
		return cfg, nil, fmt.Errorf("journal: unknown backend %q", cfg.Backend)
	}
}

// NewWithFactory creates a writable Journal over a custom store
// factory. Use lode.NewMemoryFactory() for testing.
func NewWithFactory(cfg Config, factory lode.StoreFactory) (*Journal, error) {
	if cfg.RunID == "" {
		return nil, ErrNoRunID
	}
	return openDatasets(cfg, factory)
}

// NewReaderWithFactory opens a query-only Journal over a custom store
// factory.
func NewReaderWithFactory(cfg Config, factory lode.StoreFactory) (*Journal, error) {
	return openDatasets(cfg, factory)
}

func openDatasets(cfg Config, factory lode.StoreFactory) (*Journal, error) {
	snapshots, err := newDataset(DatasetSnapshots, factory)
	if err != nil {
		return nil, err
	}
	events, err := newDataset(DatasetEvents, factory)
	if err != nil {
		return nil, err
	}
	metrics, err := newDataset(DatasetRunMetrics, factory)
	if err != nil {
		return nil, err
	}

	return &Journal{
		cfg:       cfg,
		snapshots: snapshots,
		events:    events,
		metrics:   metrics,
	}, nil
}

// newDataset builds one run_id-partitioned JSONL dataset.
// The same codec and layout serve both the write and read paths.
func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout("run_id"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, fmt.Errorf("journal: create dataset %s: %w", id, err)
	}
	return ds, nil
}

// RunID reports the run this journal writes under.
func (j *Journal) RunID() string { return j.cfg.RunID }

// Backend reports the storage backend this journal was opened with.
func (j *Journal) Backend() Backend {
	if j.cfg.Backend == "" {
		return BackendFS
	}
	return j.cfg.Backend
}

// WriteSnapshots writes a batch of state records, preserving order.
func (j *Journal) WriteSnapshots(ctx context.Context, recs []wire.StateRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]any, 0, len(recs))
	for i := range recs {
		rows = append(rows, snapshotRow(&recs[i]))
	}
	if _, err := j.snapshots.Write(ctx, rows, lode.Metadata{}); err != nil {
		return fmt.Errorf("journal: write snapshots: %w", err)
	}
	return nil
}

// WriteEvents writes a batch of event records, preserving order.
func (j *Journal) WriteEvents(ctx context.Context, recs []wire.EventRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]any, 0, len(recs))
	for i := range recs {
		rows = append(rows, eventRow(&recs[i]))
	}
	if _, err := j.events.Write(ctx, rows, lode.Metadata{}); err != nil {
		return fmt.Errorf("journal: write events: %w", err)
	}
	return nil
}

// WriteRunMetrics writes the cumulative metrics record for a run.
// Written once at run end; a rewritten record supersedes earlier ones
// on the read path (latest wins).
func (j *Journal) WriteRunMetrics(ctx context.Context, rec *RunMetricsRecord) error {
	if _, err := j.metrics.Write(ctx, []any{metricsRow(rec)}, lode.Metadata{}); err != nil {
		return fmt.Errorf("journal: write run metrics: %w", err)
	}
	return nil
}

// Close releases journal resources.
func (j *Journal) Close() error {
	// Datasets need no explicit close in the current Lode API.
	return nil
}
