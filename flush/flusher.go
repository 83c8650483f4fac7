package flush

import (
	"reflect"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/scylladb/go-set/strset"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"go-datastore-cassandra/cassandra"
	config "go-datastore-cassandra/configs"
	"go-datastore-cassandra/engine"
)

type Metric struct {
	ProcessLatencyMs int64
	FlushLatencyMs   int64
	PendingCount     int64
	FlushedTotal     int64
	FailedTotal      int64
}

type metric struct {
	processLatencyMs atomic.Int64
	flushLatencyMs   atomic.Int64
	pendingCount     atomic.Int64
	flushedTotal     atomic.Int64
	failedTotal      atomic.Int64
}

type operationKey struct {
	entity string
	key    interface{}
}

// unkeyed stands in for keys that can't identify a row. No caller can build
// one, so it never matches a real key.
type unkeyed int

type Option func(*Flusher)

// WithAfterFlush registers a hook run after every successful flush.
func WithAfterFlush(fn func()) Option {
	return func(f *Flusher) {
		f.afterFlush = fn
	}
}

// Flusher queues pending operations and executes them on flush. Writes to
// the same entity and key replace each other in place. It decides ordering
// and the retry policy; the operations themselves do neither.
type Flusher struct {
	template       cassandra.BatchExecutor
	afterFlush     func()
	ticker         *time.Ticker
	shutdownCh     chan struct{}
	doneCh         chan struct{}
	pendingKeys    map[operationKey]int
	oldest         time.Time
	closeErr       error
	pending        []engine.PendingOperation
	metric         metric
	retryPolicy    config.RetryPolicy
	batchSizeLimit int
	maxBatchSize   int
	workerCount    int
	sequence       int
	batchType      cassandra.BatchType
	closeOnce      sync.Once
	flushLock      sync.Mutex
	started        atomic.Bool
	useBatch       bool
}

func NewFlusher(cfg config.Flush, template cassandra.BatchExecutor, opts ...Option) (*Flusher, error) {
	if template == nil {
		return nil, errors.New("flusher requires a template")
	}

	batchSizeLimit := cfg.BatchSizeLimit
	if batchSizeLimit <= 0 {
		batchSizeLimit = 1000
	}
	maxBatchSize := cfg.MaxBatchSize
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	tickerDuration := cfg.BatchTickerDuration
	if tickerDuration <= 0 {
		tickerDuration = time.Second
	}

	f := &Flusher{
		template:       template,
		ticker:         time.NewTicker(tickerDuration),
		shutdownCh:     make(chan struct{}),
		doneCh:         make(chan struct{}),
		pending:        make([]engine.PendingOperation, 0, batchSizeLimit),
		pendingKeys:    make(map[operationKey]int, batchSizeLimit),
		retryPolicy:    cfg.RetryPolicy,
		batchSizeLimit: batchSizeLimit,
		maxBatchSize:   maxBatchSize,
		workerCount:    workerCount,
		batchType:      cassandra.ParseBatchType(cfg.BatchType),
		useBatch:       cfg.UseBatch,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Start flushes on every tick until Close is called.
func (f *Flusher) Start() {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	defer close(f.doneCh)

	for {
		select {
		case <-f.ticker.C:
			if err := f.Flush(); err != nil {
				klog.ErrorS(err, "Periodic flush failed")
			}
		case <-f.shutdownCh:
			f.ticker.Stop()
			f.closeErr = f.Flush()
			if f.closeErr != nil {
				klog.ErrorS(f.closeErr, "Final flush failed")
			}
			return
		}
	}
}

// Close stops the flush loop and flushes what is still queued.
func (f *Flusher) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.shutdownCh)
		if f.started.Load() {
			<-f.doneCh
			err = f.closeErr
			return
		}
		f.ticker.Stop()
		err = f.Flush()
	})
	return err
}

// Add queues op. Reaching the batch size limit flushes synchronously and
// returns the flush error.
func (f *Flusher) Add(op engine.PendingOperation) error {
	if op == nil {
		return nil
	}

	f.flushLock.Lock()
	defer f.flushLock.Unlock()

	if f.pendingKeys == nil {
		f.pendingKeys = make(map[operationKey]int)
	}
	if len(f.pending) == 0 {
		f.oldest = time.Now()
	}

	key := f.keyOf(op)
	if index, ok := f.pendingKeys[key]; ok {
		f.pending[index] = op
	} else {
		f.pendingKeys[key] = len(f.pending)
		f.pending = append(f.pending, op)
	}
	f.metric.pendingCount.Store(int64(len(f.pending)))

	if f.batchSizeLimit > 0 && len(f.pending) >= f.batchSizeLimit {
		return f.flushLocked()
	}
	return nil
}

// Replace swaps the statement of the queued Cassandra operation for entity
// and key. It reports false when no such operation is queued.
func (f *Flusher) Replace(entity string, key interface{}, stmt *cassandra.Statement) bool {
	if key == nil || !reflect.TypeOf(key).Comparable() {
		return false
	}

	f.flushLock.Lock()
	defer f.flushLock.Unlock()

	index, ok := f.pendingKeys[operationKey{entity: entity, key: key}]
	if !ok {
		return false
	}
	op, ok := f.pending[index].(engine.CassandraPendingOperation)
	if !ok {
		return false
	}
	op.SetStatement(stmt)
	return true
}

func (f *Flusher) Pending() int {
	f.flushLock.Lock()
	defer f.flushLock.Unlock()
	return len(f.pending)
}

func (f *Flusher) Flush() error {
	f.flushLock.Lock()
	defer f.flushLock.Unlock()
	return f.flushLocked()
}

// flushLocked clears the queue whether or not execution succeeds.
func (f *Flusher) flushLocked() error {
	if len(f.pending) == 0 {
		return nil
	}

	ops := f.pending
	f.pending = make([]engine.PendingOperation, 0, f.batchSizeLimit)
	f.pendingKeys = make(map[operationKey]int, f.batchSizeLimit)
	f.metric.pendingCount.Store(0)
	f.metric.processLatencyMs.Store(time.Since(f.oldest).Milliseconds())

	startedTime := time.Now()
	var err error
	if f.useBatch {
		err = f.executeBatched(ops)
	} else {
		err = f.executeSequential(ops)
	}
	f.metric.flushLatencyMs.Store(time.Since(startedTime).Milliseconds())

	if err != nil {
		f.metric.failedTotal.Inc()
		return errors.Wrapf(err, "flush of %d pending operations failed", len(ops))
	}

	f.metric.flushedTotal.Add(int64(len(ops)))
	klog.V(4).InfoS("Flushed pending operations", "count", len(ops), "duration", time.Since(startedTime))
	if f.afterFlush != nil {
		f.afterFlush()
	}
	return nil
}

func (f *Flusher) executeSequential(ops []engine.PendingOperation) error {
	for _, op := range ops {
		if err := engine.ExecutePendingOperationWith(op, f.run); err != nil {
			return err
		}
	}
	return nil
}

// executeBatched groups consecutive plain Cassandra writes with the same
// consistency into batches. Operations with pre or cascade operations keep
// their own execution and act as ordering barriers.
func (f *Flusher) executeBatched(ops []engine.PendingOperation) error {
	var run []*cassandra.Statement
	executeRun := func() error {
		stmts := run
		run = nil
		return f.executeStatements(stmts)
	}

	for _, op := range ops {
		if op.Vetoed() {
			continue
		}
		if stmt, ok := batchable(op); ok {
			if len(run) > 0 && run[len(run)-1].Consistency != stmt.Consistency {
				if err := executeRun(); err != nil {
					return err
				}
			}
			run = append(run, stmt)
			continue
		}
		if err := executeRun(); err != nil {
			return err
		}
		if err := engine.ExecutePendingOperationWith(op, f.run); err != nil {
			return err
		}
	}
	return executeRun()
}

func batchable(op engine.PendingOperation) (*cassandra.Statement, bool) {
	cop, ok := op.(engine.CassandraPendingOperation)
	if !ok || cop.Statement() == nil {
		return nil, false
	}
	if len(cop.PreOperations()) > 0 || len(cop.CascadeOperations()) > 0 {
		return nil, false
	}
	return cop.Statement(), true
}

// executeStatements splits stmts into batches of at most maxBatchSize and
// runs them on up to workerCount workers.
func (f *Flusher) executeStatements(stmts []*cassandra.Statement) error {
	if len(stmts) == 0 {
		return nil
	}

	var chunks [][]*cassandra.Statement
	tables := strset.New()
	for start := 0; start < len(stmts); start += f.maxBatchSize {
		end := start + f.maxBatchSize
		if end > len(stmts) {
			end = len(stmts)
		}
		chunks = append(chunks, stmts[start:end])
	}
	for _, stmt := range stmts {
		tables.Add(stmt.Keyspace + "." + stmt.Table)
	}
	klog.V(4).InfoS("Executing batches", "statements", len(stmts), "batches", len(chunks), "tables", tables.List())

	workers := f.workerCount
	if workers > len(chunks) {
		workers = len(chunks)
	}

	jobCh := make(chan []*cassandra.Statement, len(chunks))
	for _, chunk := range chunks {
		jobCh <- chunk
	}
	close(jobCh)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range jobCh {
				err := f.retry(func() error {
					return f.template.ExecuteBatch(f.batchType, chunk)
				})
				if err != nil {
					mu.Lock()
					errs = multierr.Append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return errs
}

func (f *Flusher) run(op engine.PendingOperation) error {
	return f.retry(op.Execute)
}

// retry runs fn once, plus up to RetryPolicy.NumRetries more times with
// exponential backoff. The last error is returned unchanged.
func (f *Flusher) retry(fn func() error) error {
	if f.retryPolicy.NumRetries <= 0 {
		return fn()
	}

	b := backoff.NewExponentialBackOff()
	if f.retryPolicy.MinRetryDelay > 0 {
		b.InitialInterval = f.retryPolicy.MinRetryDelay
	}
	if f.retryPolicy.MaxRetryDelay > 0 {
		b.MaxInterval = f.retryPolicy.MaxRetryDelay
	}
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		klog.V(2).InfoS("Retrying pending write", "error", err, "wait", wait)
	}
	return backoff.RetryNotify(fn, backoff.WithMaxRetries(b, uint64(f.retryPolicy.NumRetries)), notify)
}

// keyOf falls back to a unique key when the native key can't identify a row.
func (f *Flusher) keyOf(op engine.PendingOperation) operationKey {
	var entity string
	if e := op.Entity(); e != nil {
		entity = e.Name
	}

	key := op.Key()
	if key == nil || !reflect.TypeOf(key).Comparable() {
		f.sequence++
		return operationKey{entity: entity, key: unkeyed(f.sequence)}
	}
	return operationKey{entity: entity, key: key}
}

func (f *Flusher) GetMetric() *Metric {
	return &Metric{
		ProcessLatencyMs: f.metric.processLatencyMs.Load(),
		FlushLatencyMs:   f.metric.flushLatencyMs.Load(),
		PendingCount:     f.metric.pendingCount.Load(),
		FlushedTotal:     f.metric.flushedTotal.Load(),
		FailedTotal:      f.metric.failedTotal.Load(),
	}
}
