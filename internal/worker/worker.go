// Package worker implements the periodic consumer that processes entries
// assigned to one consumer name within a group: classifying each as
// invalid, a reply, or a request, and routing it accordingly.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itsthedevman/redis-ipc/internal/entry"
	"github.com/itsthedevman/redis-ipc/internal/ledger"
	"github.com/itsthedevman/redis-ipc/internal/logging"
	"github.com/itsthedevman/redis-ipc/internal/redisfacade"
)

// Classification is the outcome of inspecting one entry against this
// worker's group and the ledger.
type Classification int

const (
	ClassificationInvalid Classification = iota
	ClassificationResponse
	ClassificationRequest
)

// State is the worker's lifecycle stage.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RequestHandler processes a request entry. It is expected to call
// fulfill/reject (wired by the coordinator) before returning; any panic
// or error it raises is routed to ErrorHandler and the request is still
// acked and deleted by the worker.
type RequestHandler func(ctx context.Context, e entry.Entry)

// ErrorHandler receives any error surfaced while processing an entry.
type ErrorHandler func(e entry.Entry, err error)

// Options configures a Worker.
type Options struct {
	Group             string
	Name              string
	InstanceID        string
	Facade            *redisfacade.Facade
	Ledger            *ledger.Ledger
	ExecutionInterval time.Duration
	OnRequest         RequestHandler
	OnError           ErrorHandler
	AvailabilityTTL   time.Duration
	Logger            *zap.Logger
}

// Worker owns a periodic tick that drains its own pending list one entry
// at a time.
type Worker struct {
	opts Options

	mu       sync.Mutex
	state    State
	ticker   *time.Ticker
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *zap.Logger
	onTicked func()
}

// New builds a Worker. It does not start listening until Listen is
// called.
func New(opts Options) *Worker {
	if opts.ExecutionInterval <= 0 {
		opts.ExecutionInterval = time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		opts:  opts,
		state: StateIdle,
		logger: logger.With(
			zap.String(logging.FieldComponent, logging.ComponentWorker),
			zap.String(logging.FieldGroup, opts.Group),
			zap.String(logging.FieldConsumer, opts.Name),
		),
	}
}

// Name returns the consumer name this worker operates under.
func (w *Worker) Name() string { return w.opts.Name }

// State reports the worker's current lifecycle stage.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Listen transitions idle -> running: registers the worker's consumer
// name, marks it available, and starts the periodic tick.
func (w *Worker) Listen(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateIdle {
		w.mu.Unlock()
		return fmt.Errorf("worker %s: cannot listen from state %s", w.opts.Name, w.state)
	}
	w.state = StateRunning
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	if err := w.opts.Facade.CreateConsumer(ctx, w.opts.Group, w.opts.Name); err != nil {
		return err
	}
	if err := w.opts.Facade.MakeConsumerAvailable(ctx, w.opts.Group, w.instanceOf(), w.opts.Name, w.opts.AvailabilityTTL); err != nil {
		return err
	}

	w.ticker = time.NewTicker(w.opts.ExecutionInterval)
	go w.loop(ctx)
	w.logger.Info("worker started listening")
	return nil
}

// instanceOf returns the instance id this worker's availability entries
// are scoped to.
func (w *Worker) instanceOf() string {
	return w.opts.InstanceID
}

// loop runs the ticker until stopCh closes.
func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case <-w.ticker.C:
			w.Tick(ctx)
			if w.onTicked != nil {
				w.onTicked()
			}
		}
	}
}

// Tick performs one iteration: read the next own-pending entry,
// classify it, and route it. Tick body runs synchronously so observers
// are notified before the next tick can observe a freshly-acked entry.
func (w *Worker) Tick(ctx context.Context) {
	e, ok, err := w.opts.Facade.NextPendingEntry(ctx, w.opts.Group, w.opts.Name)
	if err != nil {
		w.reportError(e, err)
		return
	}
	if !ok {
		return
	}
	w.process(ctx, e)
}

func (w *Worker) process(ctx context.Context, e entry.Entry) {
	defer w.ackAndDelete(ctx, e)
	defer w.recoverPanic(e)

	switch w.classify(e) {
	case ClassificationInvalid:
		return
	case ClassificationResponse:
		w.opts.Ledger.Put(e, ledger.Message{Kind: ledger.MessageReply, Entry: e})
	case ClassificationRequest:
		w.invokeHandler(ctx, e)
	}
}

func (w *Worker) classify(e entry.Entry) Classification {
	if e.DestinationGroup != w.opts.Group || !e.Status.Valid() {
		return ClassificationInvalid
	}
	if w.opts.Ledger.Contains(e) {
		return ClassificationResponse
	}
	if e.Status == entry.StatusPending {
		return ClassificationRequest
	}
	return ClassificationInvalid
}

func (w *Worker) invokeHandler(ctx context.Context, e entry.Entry) {
	if w.opts.OnRequest == nil {
		return
	}
	w.opts.OnRequest(logging.WithEntryID(ctx, e.ID), e)
}

func (w *Worker) recoverPanic(e entry.Entry) {
	if r := recover(); r != nil {
		w.reportError(e, fmt.Errorf("worker: handler panic: %v", r))
	}
}

func (w *Worker) reportError(e entry.Entry, err error) {
	w.logger.Warn("error while processing entry", zap.Error(err), zap.String(logging.FieldEntryID, e.ID))
	if w.opts.OnError != nil {
		w.opts.OnError(e, err)
	}
}

func (w *Worker) ackAndDelete(ctx context.Context, e entry.Entry) {
	if err := w.opts.Facade.AcknowledgeEntry(ctx, w.opts.Group, e); err != nil {
		w.logger.Warn("failed to ack entry", zap.Error(err))
	}
	if err := w.opts.Facade.DeleteEntry(ctx, e); err != nil {
		w.logger.Warn("failed to delete entry", zap.Error(err))
	}
}

// StopListening transitions running -> stopping -> stopped: marks the
// worker unavailable, stops the ticker, and waits for the in-flight tick
// to finish.
func (w *Worker) StopListening(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateRunning {
		w.mu.Unlock()
		return nil
	}
	w.state = StateStopping
	w.mu.Unlock()

	close(w.stopCh)
	w.ticker.Stop()
	<-w.doneCh

	err := w.opts.Facade.MakeConsumerUnavailable(ctx, w.opts.Group, w.instanceOf(), w.opts.Name)

	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()

	w.logger.Info("worker stopped listening")
	return err
}
