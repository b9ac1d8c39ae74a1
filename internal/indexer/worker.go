// Package indexer runs the background embedding pipeline. Memory records
// enter as pending rows; workers read their files, generate embeddings,
// and flip each record to success or failed independently.
package indexer

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mnemohq/mnemo-mcp/internal/embed"
	"github.com/mnemohq/mnemo-mcp/internal/logger"
	"github.com/mnemohq/mnemo-mcp/internal/reader"
	"github.com/mnemohq/mnemo-mcp/internal/retry"
	"github.com/mnemohq/mnemo-mcp/internal/store"
)

var log = logger.ForComponent("indexer")

type WorkerConfig struct {
	WorkerCount  int
	MaxQueueSize int
	RetryCeiling int
	// SweepInterval controls how often pending and retryable records are
	// pulled back into the queue.
	SweepInterval time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		WorkerCount:   2,
		MaxQueueSize:  1000,
		RetryCeiling:  retry.DefaultRetryCeiling,
		SweepInterval: 30 * time.Second,
	}
}

type WorkerStats struct {
	Embedded  int64
	Failed    int64
	Skipped   int64
	InQueue   int64
	IsRunning bool
	StartedAt time.Time
	LastDone  time.Time
}

// Job identifies one record to embed.
type Job struct {
	RecordID int64
}

type Worker struct {
	store   *store.Store
	engine  embed.Engine
	reader  *reader.Reader
	retries *retry.Manager
	config  WorkerConfig

	queue chan Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats   WorkerStats
	statsMu sync.RWMutex
}

func NewWorker(s *store.Store, engine embed.Engine, r *reader.Reader, config WorkerConfig) *Worker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultWorkerConfig().WorkerCount
	}
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = DefaultWorkerConfig().MaxQueueSize
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultWorkerConfig().SweepInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:   s,
		engine:  engine,
		reader:  r,
		retries: retry.NewManager(s, config.RetryCeiling),
		config:  config,
		queue:   make(chan Job, config.MaxQueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	w.statsMu.Lock()
	w.stats.IsRunning = true
	w.stats.StartedAt = time.Now()
	w.statsMu.Unlock()

	log.Info("embedding worker started", "workers", w.config.WorkerCount)

	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}

	w.wg.Add(1)
	go w.sweeper()
}

func (w *Worker) Stop() {
	log.Info("embedding worker stopping")

	w.cancel()
	w.wg.Wait()

	w.statsMu.Lock()
	w.stats.IsRunning = false
	w.statsMu.Unlock()

	log.Info("embedding worker stopped")
}

// Enqueue queues one record for embedding. Returns false when the queue
// is full; the sweeper will pick the record up on its next pass.
func (w *Worker) Enqueue(id int64) bool {
	select {
	case w.queue <- Job{RecordID: id}:
		atomic.AddInt64(&w.stats.InQueue, 1)
		return true
	default:
		log.Warn("embed queue full", "record_id", id)
		return false
	}
}

func (w *Worker) GetStats() WorkerStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	stats := w.stats
	stats.InQueue = atomic.LoadInt64(&w.stats.InQueue)
	return stats
}

func (w *Worker) worker(id int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case job := <-w.queue:
			atomic.AddInt64(&w.stats.InQueue, -1)
			log.Debug("worker processing record", "worker_id", id, "record_id", job.RecordID)
			w.processJob(job)
		}
	}
}

// sweeper periodically re-enqueues pending records and failed records
// still below the retry ceiling. The first sweep runs immediately so a
// restart drains whatever the previous process left behind.
func (w *Worker) sweeper() {
	defer w.wg.Done()

	w.sweep()

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Worker) sweep() {
	pending, err := w.store.ListByStatus(store.StatusPending, w.config.MaxQueueSize)
	if err != nil {
		log.Warn("sweep failed to list pending records", "error", err)
		return
	}
	for _, rec := range pending {
		w.Enqueue(rec.ID)
	}

	retryable, err := w.retries.ListFailed()
	if err != nil {
		log.Warn("sweep failed to list retryable records", "error", err)
		return
	}
	for _, rec := range retryable {
		w.Enqueue(rec.ID)
	}

	if len(pending)+len(retryable) > 0 {
		log.Debug("sweep enqueued records", "pending", len(pending), "retryable", len(retryable))
	}
}

func (w *Worker) processJob(job Job) {
	rec, err := w.store.GetMemory(job.RecordID)
	if err != nil {
		// Record deleted between enqueue and processing.
		w.recordSkipped()
		log.Debug("record gone, skipping", "record_id", job.RecordID)
		return
	}
	if rec.EmbeddingStatus == store.StatusSuccess {
		w.recordSkipped()
		return
	}

	content, err := w.reader.Read(rec.FilePath)
	if err != nil {
		w.recordFailed(rec.ID, "read: "+err.Error())
		return
	}
	if strings.TrimSpace(content) == "" {
		w.recordFailed(rec.ID, "empty content")
		return
	}

	embedding, err := w.engine.Embed(w.ctx, content, embed.ModeDocument)
	if err != nil {
		w.recordFailed(rec.ID, "embed: "+err.Error())
		return
	}

	if err := w.retries.MarkRetried(rec.ID, retry.Outcome{Embedding: embedding}); err != nil {
		log.Error("failed to store embedding", "record_id", rec.ID, "error", err)
		atomic.AddInt64(&w.stats.Failed, 1)
		return
	}

	w.recordEmbedded()
	log.Info("embedding generated", "record_id", rec.ID, "folder", rec.SpecFolder)
}

func (w *Worker) recordEmbedded() {
	atomic.AddInt64(&w.stats.Embedded, 1)
	w.statsMu.Lock()
	w.stats.LastDone = time.Now()
	w.statsMu.Unlock()
}

func (w *Worker) recordFailed(id int64, reason string) {
	atomic.AddInt64(&w.stats.Failed, 1)
	if err := w.retries.MarkRetried(id, retry.Outcome{FailureReason: reason}); err != nil {
		log.Error("failed to record embedding failure", "record_id", id, "error", err)
	}
	log.Warn("embedding failed", "record_id", id, "reason", reason)
}

func (w *Worker) recordSkipped() {
	atomic.AddInt64(&w.stats.Skipped, 1)
}
