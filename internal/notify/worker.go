package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/raga-review/internal/bus"
	"github.com/kingrea/raga-review/internal/review"
)

const defaultDeliveryTimeout = 10 * time.Second

// Recorder observes delivery outcomes. metrics.Collector satisfies it.
type Recorder interface {
	RecordDelivery(topic, sink string, err error)
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithRecorder reports every delivery attempt to r.
func WithRecorder(r Recorder) WorkerOption {
	return func(w *Worker) {
		w.recorder = r
	}
}

// WithDeliveryTimeout bounds each Deliver call.
func WithDeliveryTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithWorkerLogger overrides the default no-op logger.
func WithWorkerLogger(logger *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Worker drains one subscription into one sink.
type Worker struct {
	sub      bus.Subscription
	sink     Sink
	recorder Recorder
	logger   *zap.Logger
	timeout  time.Duration
}

// NewWorker binds sub to sink.
func NewWorker(sub bus.Subscription, sink Sink, opts ...WorkerOption) *Worker {
	w := &Worker{
		sub:     sub,
		sink:    sink,
		logger:  zap.NewNop(),
		timeout: defaultDeliveryTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run delivers events until the subscription closes or ctx is cancelled.
// Delivery failures are logged and counted; they never stop the worker.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.sub.Events:
			if !ok {
				return
			}
			w.deliver(ctx, evt)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, evt review.Event) {
	dctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	err := w.sink.Deliver(dctx, evt)
	if w.recorder != nil {
		w.recorder.RecordDelivery(string(w.sub.Topic), w.sink.Name(), err)
	}
	if err != nil {
		w.logger.Error("notify: delivery failed",
			zap.String("topic", string(w.sub.Topic)),
			zap.String("sink", w.sink.Name()),
			zap.String("type", string(evt.Type)),
			zap.String("summary", evt.SummaryID),
			zap.Error(err),
		)
	}
}

// Dispatcher runs a set of workers and waits for them on Stop.
type Dispatcher struct {
	workers []*Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher groups workers.
func NewDispatcher(workers ...*Worker) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Start launches every worker.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for _, w := range d.workers {
		d.wg.Add(1)
		go func(w *Worker) {
			defer d.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Stop closes the subscriptions, letting workers drain what is buffered, and
// waits for them. Workers still running when ctx expires are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) {
	for _, w := range d.workers {
		w.sub.Close()
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		<-done
	}
}
