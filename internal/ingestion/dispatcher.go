package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/config"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

const defaultProcessTimeout = 60 * time.Second

// Task is one acknowledged webhook delivery waiting to be processed.
type Task struct {
	// Ctx carries the request id and logger; its cancellation is ignored.
	Ctx        context.Context
	Body       []byte
	ReceivedAt time.Time
}

// Dispatcher runs webhook processing on an ants pool, detached from the
// request that delivered the payload. Submit never waits for a worker: tasks
// go to a bounded queue fed into the pool, and spill onto their own
// goroutine when the queue is full.
type Dispatcher struct {
	pool       *ants.PoolWithFunc
	queue      chan Task
	feederDone chan struct{}
	processor  Processor
	timeout    time.Duration
	baseLogger *zap.Logger
	wg         sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher creates the pool. processTimeout bounds one task.
func NewDispatcher(cfg config.WorkerPoolConfig, processTimeout time.Duration, processor Processor, baseLogger *zap.Logger) (*Dispatcher, error) {
	if processTimeout <= 0 {
		processTimeout = defaultProcessTimeout
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		queue:      make(chan Task, queueSize),
		feederDone: make(chan struct{}),
		processor:  processor,
		timeout:    processTimeout,
		baseLogger: baseLogger.Named("webhook_dispatcher"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(Task)
		if !ok {
			d.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		d.run(task)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(p interface{}) {
			d.baseLogger.Error("Panic recovered in webhook worker", zap.Any("panic_error", p), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook worker pool: %w", err)
	}
	d.pool = pool
	go d.feed()
	d.baseLogger.Info("Webhook worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
		zap.Duration("process_timeout", processTimeout),
	)
	return d, nil
}

// Submit queues task and returns immediately. When the queue is full the
// task runs on its own goroutine instead: an acknowledged payload is never
// dropped and the webhook response never waits for a worker.
func (d *Dispatcher) Submit(task Task) {
	if task.Ctx == nil {
		task.Ctx = context.Background()
	}
	if task.ReceivedAt.IsZero() {
		task.ReceivedAt = utils.Now()
	}

	d.wg.Add(1)
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.stopped {
		select {
		case d.queue <- task:
			observer.IncWorkerPoolSubmit("pooled")
			observer.SetWorkerPoolWaiting(len(d.queue))
			return
		default:
		}
	}

	logger.FromContextOr(task.Ctx, d.baseLogger).Warn("Webhook queue full, running task on a dedicated goroutine",
		zap.Int("queued", len(d.queue)),
		zap.Bool("stopped", d.stopped),
	)
	d.overflow(task)
}

// feed hands queued tasks to the pool, blocking while every worker is busy.
func (d *Dispatcher) feed() {
	defer close(d.feederDone)
	for task := range d.queue {
		if err := d.pool.Invoke(task); err != nil {
			logger.FromContextOr(task.Ctx, d.baseLogger).Warn("Webhook pool rejected task, running on a dedicated goroutine",
				zap.Bool("overload", errors.Is(err, ants.ErrPoolOverload)),
				zap.Error(err),
			)
			d.overflow(task)
		}
		observer.SetWorkerPoolWaiting(len(d.queue))
	}
}

func (d *Dispatcher) overflow(task Task) {
	observer.IncWorkerPoolSubmit("overflow")
	utils.SafeGo(func() { d.run(task) }, func(r interface{}, stack []byte) {
		d.baseLogger.Error("Panic recovered in overflow webhook task", zap.Any("panic_error", r), zap.ByteString("stack", stack))
	})
}

func (d *Dispatcher) run(task Task) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(task.Ctx), d.timeout)
	defer cancel()

	log := logger.FromContextOr(ctx, d.baseLogger)
	start := time.Now()
	process := utils.WrapWithContextRecovery(d.processor.Process)
	if err := process(ctx, task.Body); err != nil {
		log.Error("Webhook processing failed",
			zap.String("payload_size", utils.ByteCountSI(int64(len(task.Body)))),
			zap.Duration("queued", start.Sub(task.ReceivedAt)),
			zap.Error(err),
		)
	}
	observer.ObserveWebhookProcessing(time.Since(start))
}

// Stop waits for queued and running tasks and releases the pool. Tasks
// submitted after Stop still run, on their own goroutine.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.baseLogger.Info("[shutdown] Draining webhook worker pool", zap.Int("running", d.pool.Running()), zap.Int("queued", len(d.queue)))
	<-d.feederDone
	d.wg.Wait()
	d.pool.Release()
}
