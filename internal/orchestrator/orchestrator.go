package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/gridflow/internal/ingest"
	"github.com/wonny/gridflow/internal/store"
	"github.com/wonny/gridflow/internal/validate"
	"github.com/wonny/gridflow/pkg/logger"
	"github.com/wonny/gridflow/pkg/redis"
)

const defaultWorkers = 4

// Orchestrator runs collection jobs: it fans a job out into sub-ranges,
// drives each through collect, validate, and store on a per-source worker
// pool, and folds the outcomes back into a single result.
type Orchestrator struct {
	engine *validate.Engine
	rules  *validate.Registry
	store  *store.Store
	logger *logger.Logger

	mu         sync.RWMutex
	collectors map[string]ingest.Collector
	workers    map[string]int

	reports     *validate.Repository
	checkpoints *redis.Checkpoints
	notifier    Notifier
}

// New creates an orchestrator. Collectors are registered afterwards; the
// report archive, checkpoints, and notifier are optional.
func New(engine *validate.Engine, rules *validate.Registry, st *store.Store, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		engine:     engine,
		rules:      rules,
		store:      st,
		logger:     log.WithField("module", "orchestrator"),
		collectors: make(map[string]ingest.Collector),
		workers:    make(map[string]int),
	}
}

// Register adds a collector with its per-source worker count.
func (o *Orchestrator) Register(c ingest.Collector, workers int) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.collectors[c.Source()] = c
	o.workers[c.Source()] = workers
}

// WithReports attaches the quality report archive.
func (o *Orchestrator) WithReports(repo *validate.Repository) *Orchestrator {
	o.reports = repo
	return o
}

// WithCheckpoints attaches the collection checkpoint cache.
func (o *Orchestrator) WithCheckpoints(cp *redis.Checkpoints) *Orchestrator {
	o.checkpoints = cp
	return o
}

// WithNotifier attaches a progress observer.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// Sources lists the registered source ids, sorted.
func (o *Orchestrator) Sources() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	sources := make([]string, 0, len(o.collectors))
	for id := range o.collectors {
		sources = append(sources, id)
	}
	sort.Strings(sources)
	return sources
}

// Collector returns the registered collector for a source.
func (o *Orchestrator) Collector(sourceID string) (ingest.Collector, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.collectors[sourceID]
	return c, ok
}

// Run executes a job to completion. Sub-ranges fail independently: one
// provider error never discards the work of its siblings. A storage write
// failure is different; it stops new sub-ranges for the job, since the
// store itself is unhealthy.
func (o *Orchestrator) Run(ctx context.Context, job *Job) *Result {
	result := &Result{
		JobID:     job.ID,
		SourceID:  job.SourceID,
		DataType:  job.DataType,
		StartedAt: time.Now().UTC(),
	}

	collector, ok := o.Collector(job.SourceID)
	if !ok {
		return o.finish(result, StatusFailed, fmt.Sprintf("no collector registered for source %q", job.SourceID))
	}
	rs, err := o.rules.Get(job.SourceID, job.DataType)
	if err != nil {
		return o.finish(result, StatusFailed, err.Error())
	}
	subRanges, err := collector.SubRanges(job.DataType, job.Range)
	if err != nil {
		return o.finish(result, StatusFailed, fmt.Sprintf("split range: %v", err))
	}
	if len(subRanges) == 0 {
		return o.finish(result, StatusSucceeded, "")
	}

	o.logger.WithFields(map[string]interface{}{
		"job_id":     job.ID,
		"source":     job.SourceID,
		"data_type":  job.DataType,
		"sub_ranges": len(subRanges),
	}).Info("Job started")

	o.mu.RLock()
	workers := o.workers[job.SourceID]
	o.mu.RUnlock()
	if workers > len(subRanges) {
		workers = len(subRanges)
	}

	subCh := make(chan ingest.SubRange)
	outCh := make(chan SubRangeOutcome, len(subRanges))
	var storeDown atomic.Bool

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sr := range subCh {
				switch {
				case ctx.Err() != nil:
					outCh <- SubRangeOutcome{
						Key:    sr.Key,
						Status: SubRangeFailed,
						Error:  fmt.Sprintf("not started: %v", ctx.Err()),
					}
				case storeDown.Load():
					outCh <- SubRangeOutcome{
						Key:    sr.Key,
						Status: SubRangeFailed,
						Error:  "not started: storage write failed earlier in this job",
					}
				default:
					outcome := o.processSubRange(ctx, job, collector, rs, sr, &storeDown)
					outCh <- outcome
				}
			}
		}()
	}

	for _, sr := range subRanges {
		subCh <- sr
	}
	close(subCh)
	wg.Wait()
	close(outCh)

	for outcome := range outCh {
		result.SubRanges = append(result.SubRanges, outcome)
		switch outcome.Status {
		case SubRangeSucceeded:
			result.RecordsWritten += outcome.Records
		case SubRangeQuarantined:
			result.RecordsQuarantined += outcome.Records
		}
	}
	sort.Slice(result.SubRanges, func(i, j int) bool {
		return result.SubRanges[i].Key < result.SubRanges[j].Key
	})

	succeeded := 0
	for _, sr := range result.SubRanges {
		if sr.Status == SubRangeSucceeded {
			succeeded++
		}
	}
	status := StatusFailed
	switch {
	case succeeded == len(result.SubRanges):
		status = StatusSucceeded
	case succeeded > 0:
		status = StatusPartial
	}

	o.advanceCheckpoint(ctx, job, result)
	return o.finish(result, status, "")
}

// processSubRange drives one sub-range through the full pipeline.
func (o *Orchestrator) processSubRange(ctx context.Context, job *Job, collector ingest.Collector, rs *validate.RuleSet, sr ingest.SubRange, storeDown *atomic.Bool) SubRangeOutcome {
	o.notify(job, sr.Key, "collecting", 0, "")

	batch, err := collector.Fetch(ctx, job.DataType, sr)
	if err != nil {
		o.logger.WithError(err).WithField("sub_range", sr.Key).Warn("Sub-range fetch failed")
		o.notify(job, sr.Key, "failed", 0, err.Error())
		return SubRangeOutcome{Key: sr.Key, Status: SubRangeFailed, Error: fmt.Sprintf("fetch: %v", err)}
	}
	o.notify(job, sr.Key, "collected", batch.Len(), "")

	if batch.Len() == 0 {
		// Empty day: nothing to store, nothing to quarantine.
		return SubRangeOutcome{Key: sr.Key, Status: SubRangeSucceeded, Records: 0}
	}

	vb := o.engine.Validate(batch, rs)
	o.notify(job, sr.Key, "validated", vb.Batch.Len(), "")

	if o.reports != nil {
		if err := o.reports.Save(ctx, vb.Report); err != nil {
			// The archive is an audit convenience; data flow continues.
			o.logger.WithError(err).WithField("sub_range", sr.Key).Warn("Quality report archive failed")
		}
	}

	key := store.NewKey(job.SourceID, job.DataType, sr.Day)

	if !vb.Report.Pass {
		dir, qerr := o.store.Quarantine(ctx, key, vb.Batch, vb.Report)
		if qerr != nil {
			o.notify(job, sr.Key, "failed", vb.Batch.Len(), qerr.Error())
			return SubRangeOutcome{Key: sr.Key, Status: SubRangeFailed, Records: vb.Batch.Len(),
				Error: fmt.Sprintf("quarantine: %v", qerr)}
		}
		o.notify(job, sr.Key, "quarantined", vb.Batch.Len(), dir)
		return SubRangeOutcome{
			Key:      sr.Key,
			Status:   SubRangeQuarantined,
			Records:  vb.Batch.Len(),
			Warnings: vb.Report.WarningTotal(),
			Error:    fmt.Sprintf("quality gate: aggregate %.4f below threshold %.4f or hard errors present", vb.Report.Aggregate, vb.Report.Threshold),
		}
	}

	manifest, err := o.store.Write(ctx, key, vb.Batch, vb.Report)
	if err != nil {
		storeDown.Store(true)
		o.logger.WithError(err).WithField("sub_range", sr.Key).Error("Partition write failed")
		o.notify(job, sr.Key, "failed", vb.Batch.Len(), err.Error())
		return SubRangeOutcome{Key: sr.Key, Status: SubRangeFailed, Records: vb.Batch.Len(),
			Error: fmt.Sprintf("store: %v", err)}
	}

	o.notify(job, sr.Key, "stored", manifest.Rows, "")
	return SubRangeOutcome{
		Key:      sr.Key,
		Status:   SubRangeSucceeded,
		Records:  manifest.Rows,
		Version:  manifest.Version,
		Warnings: vb.Report.WarningTotal(),
	}
}

// advanceCheckpoint moves the dataset checkpoint past the trailing run of
// stored days. A failed day holds the checkpoint back so the next scheduled
// run re-collects from there.
func (o *Orchestrator) advanceCheckpoint(ctx context.Context, job *Job, result *Result) {
	if o.checkpoints == nil {
		return
	}

	stored := make(map[string]bool, len(result.SubRanges))
	for _, sr := range result.SubRanges {
		if sr.Status == SubRangeSucceeded {
			stored[sr.Key] = true
		}
	}

	var last time.Time
	for _, day := range job.Range.Days() {
		key := ingest.DaySubRange(job.SourceID, job.DataType, day).Key
		if !stored[key] {
			break
		}
		last = day
	}
	if last.IsZero() {
		return
	}

	if err := o.checkpoints.Advance(ctx, job.SourceID, job.DataType, last); err != nil {
		o.logger.WithError(err).Warn("Checkpoint advance failed")
	}
}

func (o *Orchestrator) finish(result *Result, status Status, errMsg string) *Result {
	result.Status = status
	result.Error = errMsg
	result.FinishedAt = time.Now().UTC()

	o.notify(&Job{ID: result.JobID, SourceID: result.SourceID, DataType: result.DataType},
		"", "finished", result.RecordsWritten, string(status))

	o.logger.WithFields(map[string]interface{}{
		"job_id":      result.JobID,
		"status":      string(result.Status),
		"written":     result.RecordsWritten,
		"quarantined": result.RecordsQuarantined,
		"duration":    result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("Job finished")

	return result
}

func (o *Orchestrator) notify(job *Job, subRange, stage string, records int, detail string) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(ProgressEvent{
		JobID:     job.ID,
		SubRange:  subRange,
		Stage:     stage,
		Records:   records,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}
