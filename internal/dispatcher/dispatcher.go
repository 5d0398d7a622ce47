// Package dispatcher implements the periodic task that routes unread
// stream entries to the least-busy available worker in the correct
// target instance.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/itsthedevman/redis-ipc/internal/entry"
	"github.com/itsthedevman/redis-ipc/internal/ipcerrors"
	"github.com/itsthedevman/redis-ipc/internal/logging"
	"github.com/itsthedevman/redis-ipc/internal/redisfacade"
)

// State mirrors the worker's lifecycle stage: idle -> running ->
// stopping -> stopped.
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

// Options configures a Dispatcher.
type Options struct {
	Group             string
	Name              string
	InstanceID        string
	Facade            *redisfacade.Facade
	ExecutionInterval time.Duration
	ReclaimMinIdle    time.Duration
	// PublishFailureReply, when true, publishes a rejected reply on
	// dispatch failure instead of relying solely on the caller's
	// own timeout. Opt-in.
	PublishFailureReply bool
	Logger              *zap.Logger
}

// Dispatcher is a specialized worker that never accepts entries itself:
// it reads reclaimed, then unread, then its own pending entries, and
// hands each off to a worker in the correct target instance.
type Dispatcher struct {
	opts Options

	state  State
	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger
}

// New builds a Dispatcher. It does not start listening until Listen is
// called.
func New(opts Options) *Dispatcher {
	if opts.ExecutionInterval <= 0 {
		opts.ExecutionInterval = time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		opts:  opts,
		state: StateIdle,
		logger: logger.With(
			zap.String(logging.FieldComponent, logging.ComponentDispatcher),
			zap.String(logging.FieldGroup, opts.Group),
			zap.String(logging.FieldConsumer, opts.Name),
		),
	}
}

// Name returns the consumer name this dispatcher reads under.
func (d *Dispatcher) Name() string { return d.opts.Name }

// State reports the dispatcher's current lifecycle stage.
func (d *Dispatcher) State() State { return d.state }

// Listen transitions idle -> running. It refuses to start unless at
// least one worker is in this dispatcher's own instance availability
// list, since a freshly connected group with no registered workers has
// nothing for it to route to.
func (d *Dispatcher) Listen(ctx context.Context) error {
	if d.state != StateIdle {
		return fmt.Errorf("dispatcher %s: cannot listen from state %s", d.opts.Name, d.state)
	}

	names, err := d.opts.Facade.AvailableConsumerNames(ctx, d.opts.Group, d.opts.InstanceID)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return ipcerrors.NewConfigurationError("dispatcher %s: no workers available in group %q instance %q", d.opts.Name, d.opts.Group, d.opts.InstanceID)
	}

	if err := d.opts.Facade.CreateConsumer(ctx, d.opts.Group, d.opts.Name); err != nil {
		return err
	}

	d.state = StateRunning
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.ticker = time.NewTicker(d.opts.ExecutionInterval)
	go d.loop(ctx)
	d.logger.Info("dispatcher started listening")
	return nil
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.doneCh)
	for {
		select {
		case <-d.stopCh:
			return
		case <-d.ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick performs one iteration: reclaimed -> unread -> own pending, in
// that order, stopping at the first entry found.
func (d *Dispatcher) Tick(ctx context.Context) {
	e, ok, err := d.opts.Facade.NextReclaimedEntry(ctx, d.opts.Group, d.opts.Name, d.opts.ReclaimMinIdle)
	if err != nil {
		d.logger.Warn("failed reading reclaimed entry", zap.Error(err))
		return
	}
	if !ok {
		e, ok, err = d.opts.Facade.NextUnreadEntry(ctx, d.opts.Group, d.opts.Name)
		if err != nil {
			d.logger.Warn("failed reading unread entry", zap.Error(err))
			return
		}
	}
	if !ok {
		e, ok, err = d.opts.Facade.NextPendingEntry(ctx, d.opts.Group, d.opts.Name)
		if err != nil {
			d.logger.Warn("failed reading pending entry", zap.Error(err))
			return
		}
	}
	if !ok {
		return
	}
	d.route(ctx, e)
}

// route dispatches one accepted entry, or ack-drops it if it isn't
// destined for this dispatcher's group.
func (d *Dispatcher) route(ctx context.Context, e entry.Entry) {
	if e.DestinationGroup != d.opts.Group {
		d.ackDrop(ctx, e)
		return
	}

	targetInstance := e.InstanceID
	if e.Status == entry.StatusPending {
		targetInstance = d.opts.InstanceID
	}

	names, err := d.opts.Facade.AvailableConsumerNames(ctx, d.opts.Group, targetInstance)
	if err != nil {
		d.logger.Warn("failed reading availability list", zap.Error(err))
		return
	}
	if len(names) == 0 {
		d.dispatchFailure(ctx, e)
		return
	}

	infos, err := d.opts.Facade.ConsumerInfo(ctx, d.opts.Group, "")
	if err != nil {
		d.logger.Warn("failed reading consumer info", zap.Error(err))
		return
	}

	worker, ok := leastBusy(names, infos)
	if !ok {
		d.dispatchFailure(ctx, e)
		return
	}

	if err := d.opts.Facade.ClaimEntry(ctx, d.opts.Group, worker, e); err != nil {
		d.logger.Warn("failed claiming entry for worker", zap.Error(err), zap.String(logging.FieldConsumer, worker))
	}
}

// ackDrop removes an entry from this dispatcher's own PEL without
// requeuing it: the entry remains in the stream for the correct
// group's dispatcher to read via consumer-group broadcast semantics.
func (d *Dispatcher) ackDrop(ctx context.Context, e entry.Entry) {
	if err := d.opts.Facade.AcknowledgeEntry(ctx, d.opts.Group, e); err != nil {
		d.logger.Warn("failed to ack-drop foreign entry", zap.Error(err))
	}
}

// dispatchFailure handles the no-worker-available case: ack without
// requeue, and optionally publish a rejected reply so the caller does
// not have to wait out its full timeout.
func (d *Dispatcher) dispatchFailure(ctx context.Context, e entry.Entry) {
	d.logger.Warn("dispatch failure: no available worker", zap.String(logging.FieldEntryID, e.ID))
	if err := d.opts.Facade.AcknowledgeEntry(ctx, d.opts.Group, e); err != nil {
		d.logger.Warn("failed to ack undeliverable entry", zap.Error(err))
	}
	if !d.opts.PublishFailureReply {
		return
	}
	if e.Status != entry.StatusPending {
		return
	}
	reply := e.Rejected([]byte("dispatch failure: no available worker"))
	if _, err := d.opts.Facade.AddToStream(ctx, reply); err != nil {
		d.logger.Warn("failed to publish dispatch-failure reply", zap.Error(err))
	}
}

// StopListening transitions running -> stopping -> stopped.
func (d *Dispatcher) StopListening(ctx context.Context) error {
	if d.state != StateRunning {
		return nil
	}
	d.state = StateStopping
	close(d.stopCh)
	d.ticker.Stop()
	<-d.doneCh
	d.state = StateStopped
	d.logger.Info("dispatcher stopped listening")
	return nil
}
