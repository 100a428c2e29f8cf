package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/colorfulnotion/fraudproof/chain"
	"github.com/colorfulnotion/fraudproof/consensus"
	"github.com/colorfulnotion/fraudproof/discovery"
	"github.com/colorfulnotion/fraudproof/evidence"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/colorfulnotion/fraudproof/prover"
	"github.com/colorfulnotion/fraudproof/storage"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultQuorum is the number of evidence bundles one proof is built from.
const DefaultQuorum = 5

type Config struct {
	TsTolerance     uint64 // seconds around the task timestamp for the original row
	TsSearchRange   uint64 // seconds around the task timestamp for siblings and signatures
	Quorum          int
	ProofConfigName string
	PollInterval    time.Duration // rescan period for Pending tasks
	QueueDepth      int
	TrieCacheSize   int
}

func DefaultConfig() Config {
	return Config{
		TsTolerance:     300,
		TsSearchRange:   3600,
		Quorum:          DefaultQuorum,
		ProofConfigName: "std-long",
		PollInterval:    100 * time.Millisecond,
		QueueDepth:      256,
		TrieCacheSize:   8,
	}
}

// Deps are the external collaborators of the pipeline.
type Deps struct {
	Logs      storage.Store
	Chain     chain.Gateway
	Snapshots evidence.Source
	Prover    prover.Prover
	Metrics   *MetricsCollector // optional
}

// Orchestrator drives Pending tasks to a terminal status, one at a time.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	store  *Store
	finder *discovery.Finder
	tracer trace.Tracer

	queue chan uuid.UUID

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func NewOrchestrator(cfg Config, store *Store, deps Deps) (*Orchestrator, error) {
	if deps.Logs == nil || deps.Chain == nil || deps.Snapshots == nil || deps.Prover == nil {
		return nil, errors.New("orchestrator: logs, chain, snapshots and prover are required")
	}
	if cfg.Quorum <= 0 {
		cfg.Quorum = DefaultQuorum
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}
	if cfg.TrieCacheSize <= 0 {
		cfg.TrieCacheSize = DefaultConfig().TrieCacheSize
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		store:  store,
		finder: discovery.NewFinder(deps.Logs, cfg.TsTolerance, cfg.TsSearchRange),
		tracer: otel.Tracer("fraudproof/task"),
		queue:  make(chan uuid.UUID, cfg.QueueDepth),
	}, nil
}

func (o *Orchestrator) Store() *Store {
	return o.store
}

// Submit records a new Pending task and wakes the loop. It never blocks:
// when the queue is full the task is picked up by the next rescan.
func (o *Orchestrator) Submit(desc types.TaskDescription) (uuid.UUID, error) {
	t := types.Task{
		ID:        uuid.New(),
		QueryID:   desc.QueryID,
		Timestamp: desc.Timestamp,
		Status:    types.TaskPending,
	}
	if err := o.store.Insert(t); err != nil {
		return uuid.Nil, err
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.TaskSubmitted()
	}
	select {
	case o.queue <- t.ID:
	default:
		log.Warn(log.TaskMonitoring, "task queue full, deferring to rescan", "task", t.ID)
	}
	log.Info(log.TaskMonitoring, "task submitted", "task", t.ID, "query", t.QueryID, "ts", t.Timestamp)
	return t.ID, nil
}

// Start launches the processing loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return fmt.Errorf("orchestrator is already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})

	go o.runLoop(ctx, o.stopCh, o.doneCh)

	log.Info(log.TaskMonitoring, "Orchestrator: Starting", "quorum", o.cfg.Quorum, "poll", o.cfg.PollInterval)
	return nil
}

// Stop signals the loop and waits for the task in flight to finish. That task
// only returns early once the context given to Start is cancelled, so cancel
// it first when Stop must not wait on the prover or a confirmation.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.stopCh)
	done := o.doneCh
	o.mu.Unlock()

	<-done
	log.Info(log.TaskMonitoring, "Orchestrator: Stopped")
}

func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) runLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case id := <-o.queue:
			o.ProcessTask(ctx, id)
		case <-ticker.C:
			for {
				t, ok := o.store.NextPending()
				if !ok || ctx.Err() != nil {
					break
				}
				o.ProcessTask(ctx, t.ID)
			}
		}
	}
}

// ProcessTask runs one task from Pending to a terminal status. Tasks that
// are not Pending are left untouched.
func (o *Orchestrator) ProcessTask(ctx context.Context, id uuid.UUID) {
	t, ok := o.store.Get(id)
	if !ok || t.Status != types.TaskPending {
		return
	}
	if err := o.store.Transition(id, types.TaskPending, types.TaskRunning, "Started"); err != nil {
		log.Debug(log.TaskMonitoring, "task already taken", "task", id, "err", err)
		return
	}

	ctx, span := o.tracer.Start(ctx, "ProcessTask", trace.WithAttributes(
		attribute.String("task.id", id.String()),
		attribute.String("query.id", t.QueryID),
		attribute.Int64("query.ts", int64(t.Timestamp)),
	))
	defer span.End()

	start := time.Now()
	txHash, bundles, err := o.run(ctx, t)

	status, comment := types.TaskCompleted, "Transaction: "+txHash
	if err != nil {
		status, comment = types.TaskFailed, err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, fperrors.Kind(err))
		log.Warn(log.TaskMonitoring, "task failed", "task", id, "query", t.QueryID, "kind", fperrors.Kind(err), "err", err)
	} else {
		log.Info(log.TaskMonitoring, "task completed", "task", id, "query", t.QueryID, "tx", txHash, "elapsed", time.Since(start))
	}
	if err := o.store.Transition(id, types.TaskRunning, status, comment); err != nil {
		log.Error(log.TaskMonitoring, "final transition", "task", id, "err", err)
		return
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.TaskFinished(status, time.Since(start), bundles)
	}
}

func (o *Orchestrator) progress(id uuid.UUID, comment string) {
	if err := o.store.SetComment(id, comment); err != nil {
		log.Warn(log.TaskMonitoring, "progress", "task", id, "err", err)
	}
}

// run is the evidence pipeline. It returns the transaction hash and the
// number of bundles handed to the prover.
func (o *Orchestrator) run(ctx context.Context, t types.Task) (string, int, error) {
	q := o.cfg.Quorum

	siblings, err := o.finder.FindSiblings(ctx, t.QueryID, t.Timestamp)
	if err != nil {
		return "", 0, fperrors.Step("find siblings", t.QueryID, err)
	}
	o.progress(t.ID, "Got siblings")

	assignmentIDs, err := chain.ResolveAssignmentIDs(ctx, o.deps.Chain, siblings)
	if err != nil {
		return "", 0, err
	}
	o.progress(t.ID, "Got assignment id map")

	eligible := discovery.FilterEligible(siblings, assignmentIDs, t.QueryID)
	signatures, err := consensus.ComputePlurality(ctx, o.deps.Logs, eligible, t.Timestamp, o.cfg.TsSearchRange, t.QueryID)
	if err != nil {
		return "", 0, fperrors.Step("signatures", t.QueryID, err)
	}
	o.progress(t.ID, "Got signatures")

	if len(eligible) < q || len(signatures) < q {
		return "", 0, fperrors.Step("quorum", t.QueryID,
			fmt.Errorf("%w: %d eligible, %d signed, need %d", fperrors.ErrNotEnoughEvidence, len(eligible), len(signatures), q))
	}

	cache, err := evidence.NewTrieCache(o.deps.Snapshots, o.cfg.TrieCacheSize)
	if err != nil {
		return "", 0, err
	}
	collector := &evidence.Collector{
		Quorum: q,
		Cache:  cache,
		OnProgress: func(done, quorum int) {
			o.progress(t.ID, fmt.Sprintf("Got proofs %d/%d", done, quorum))
		},
		OnSkip: func(_ types.QueryLogRow, err error) {
			if o.deps.Metrics != nil {
				o.deps.Metrics.RowSkipped(fperrors.Kind(err), fperrors.GetErrorCode(err))
			}
		},
	}
	_, span := o.tracer.Start(ctx, "CollectEvidence")
	bundles, skipped := collector.Collect(ctx, evidence.Inputs{
		Rows:          eligible,
		AssignmentIDs: assignmentIDs,
		Signatures:    signatures,
	})
	span.SetAttributes(attribute.Int("bundles", len(bundles)), attribute.Int("tries", cache.Len()))
	span.End()
	if len(bundles) < q {
		err := fmt.Errorf("%w: %d/%d bundles", fperrors.ErrNotEnoughEvidence, len(bundles), q)
		if skipped != nil {
			err = fmt.Errorf("%w; skipped: %v", err, skipped)
		}
		return "", len(bundles), fperrors.Step("collect evidence", t.QueryID, err)
	}

	proof, err := o.deps.Prover.Prove(ctx, bundles)
	if err != nil {
		return "", len(bundles), fperrors.Step("prove", t.QueryID, err)
	}
	o.progress(t.ID, "Got zk proof")

	tx, err := o.deps.Chain.SubmitProof(ctx, o.cfg.ProofConfigName, proof.PublicValues, proof.ProofBytes)
	if err != nil {
		return "", len(bundles), fperrors.Step("submit proof", t.QueryID, err)
	}
	return tx.Hex(), len(bundles), nil
}

func (o *Orchestrator) Get(id uuid.UUID) (types.Task, bool) {
	return o.store.Get(id)
}

func (o *Orchestrator) List() []types.Task {
	return o.store.List()
}
