// Package coordinator implements the lifecycle façade applications use
// to join a Redis Streams request/response mesh: configure handlers,
// connect, send requests to other groups, and fulfill or reject the
// requests this group's handler receives.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/itsthedevman/redis-ipc/internal/audittrail"
	"github.com/itsthedevman/redis-ipc/internal/dispatcher"
	"github.com/itsthedevman/redis-ipc/internal/entry"
	"github.com/itsthedevman/redis-ipc/internal/ipcerrors"
	"github.com/itsthedevman/redis-ipc/internal/ledger"
	"github.com/itsthedevman/redis-ipc/internal/logging"
	"github.com/itsthedevman/redis-ipc/internal/redisfacade"
	"github.com/itsthedevman/redis-ipc/internal/response"
	"github.com/itsthedevman/redis-ipc/internal/worker"
)

// RequestHandler is invoked for every request entry destined for this
// group. It must call FulfillRequest or RejectRequest before returning.
type RequestHandler func(ctx context.Context, c *Coordinator, e entry.Entry)

// ErrorHandler receives errors surfaced by worker ticks.
type ErrorHandler func(e entry.Entry, err error)

// RedisOptions carries the Redis connection parameters.
type RedisOptions struct {
	Addr     string
	URL      string
	Password string
	DB       int
}

// LedgerOptions configures the ledger's timeout and sweep cadence.
type LedgerOptions struct {
	EntryTimeout    time.Duration
	CleanupInterval time.Duration
}

// PoolOptions configures one worker or dispatcher pool.
type PoolOptions struct {
	Size              int
	ExecutionInterval time.Duration
}

// Options configures Connect. Every field has a sensible default
// applied by Connect when left zero.
type Options struct {
	Redis               RedisOptions
	Ledger              LedgerOptions
	Consumer            PoolOptions
	Dispatcher          PoolOptions
	SendPoolSize        int
	ReclaimMinIdle      time.Duration
	AvailabilityTTL     time.Duration
	PublishFailureReply bool
	AuditTrail          *audittrail.Store
	Logger              *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.SendPoolSize <= 0 {
		o.SendPoolSize = 10
	}
	if o.Ledger.EntryTimeout <= 0 {
		o.Ledger.EntryTimeout = 5 * time.Second
	}
	if o.Ledger.CleanupInterval <= 0 {
		o.Ledger.CleanupInterval = time.Second
	}
	if o.Consumer.Size <= 0 {
		o.Consumer.Size = 10
	}
	if o.Consumer.ExecutionInterval <= 0 {
		o.Consumer.ExecutionInterval = time.Millisecond
	}
	if o.Dispatcher.Size <= 0 {
		o.Dispatcher.Size = 3
	}
	if o.Dispatcher.ExecutionInterval <= 0 {
		o.Dispatcher.ExecutionInterval = time.Millisecond
	}
	if o.ReclaimMinIdle <= 0 {
		o.ReclaimMinIdle = 10 * time.Second
	}
	if o.AvailabilityTTL <= 0 {
		o.AvailabilityTTL = 24 * time.Hour
	}
}

// poolSize computes the bounded connection pool size: one slot per
// sender plus two per worker and two per dispatcher.
func (o Options) poolSize() int {
	return o.SendPoolSize + 2*o.Consumer.Size + 2*o.Dispatcher.Size
}

// Coordinator is the per-instance façade joining one group to one
// stream. It holds no process-wide state; every field is instance-local.
type Coordinator struct {
	stream     string
	group      string
	instanceID string

	onRequest RequestHandler
	onError   ErrorHandler

	mu          sync.RWMutex
	connected   bool
	redisClient *redis.Client
	facade      *redisfacade.Facade
	ledger      *ledger.Ledger
	workers     []*worker.Worker
	dispatchers []*dispatcher.Dispatcher
	opts        Options
	auditTrail  *audittrail.Store
	logger      *zap.Logger
}

// New builds an unconnected Coordinator for stream/group. A fresh
// instance id is generated for this process.
func New(stream, group string) *Coordinator {
	return &Coordinator{
		stream:     stream,
		group:      group,
		instanceID: strings.ReplaceAll(uuid.New().String(), "-", ""),
		logger:     zap.NewNop(),
	}
}

// InstanceID returns this coordinator's process token.
func (c *Coordinator) InstanceID() string { return c.instanceID }

// Configure sets the request and error callbacks. Both must be set
// before Connect.
func (c *Coordinator) Configure(onRequest RequestHandler, onError ErrorHandler) {
	c.onRequest = onRequest
	c.onError = onError
}

// Connect builds the Redis façade, ledger, worker pool and dispatcher
// pool, and starts them. The consumer group is destroyed and recreated
// so that a fresh start never inherits stale pending entries from a
// previous crashed instance under the same name.
func (c *Coordinator) Connect(ctx context.Context, opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ipcerrors.NewConfigurationError("coordinator for group %q is already connected", c.group)
	}
	if c.onRequest == nil || c.onError == nil {
		return ipcerrors.NewConfigurationError("coordinator for group %q: Configure must be called before Connect", c.group)
	}

	opts.applyDefaults()
	if opts.Logger != nil {
		c.logger = opts.Logger.With(
			zap.String(logging.FieldComponent, logging.ComponentCoordinator),
			zap.String(logging.FieldGroup, c.group),
			zap.String(logging.FieldInstanceID, c.instanceID),
		)
	}
	c.opts = opts
	c.auditTrail = opts.AuditTrail
	if c.auditTrail == nil {
		c.auditTrail = audittrail.NewNullStore()
	}

	redisOpts := &redis.Options{
		Addr:     opts.Redis.Addr,
		Password: opts.Redis.Password,
		DB:       opts.Redis.DB,
		PoolSize: opts.poolSize(),
	}
	if opts.Redis.URL != "" {
		parsed, err := redis.ParseURL(opts.Redis.URL)
		if err != nil {
			return ipcerrors.NewConfigurationError("invalid redis url: %v", err)
		}
		parsed.PoolSize = opts.poolSize()
		redisOpts = parsed
	}
	c.redisClient = redis.NewClient(redisOpts)
	c.facade = redisfacade.New(&redisfacade.ClientAdapter{Client: c.redisClient}, c.stream)

	if err := c.facade.DestroyGroup(ctx, c.group); err != nil {
		return err
	}
	if err := c.facade.CreateGroup(ctx, c.group); err != nil {
		return err
	}

	c.ledger = ledger.New(opts.Ledger.EntryTimeout, c.logger)
	c.ledger.StartSweeper(opts.Ledger.CleanupInterval)

	c.workers = make([]*worker.Worker, 0, opts.Consumer.Size)
	for i := 0; i < opts.Consumer.Size; i++ {
		w := worker.New(worker.Options{
			Group:             c.group,
			Name:              fmt.Sprintf("%s-worker-%d", c.instanceID, i),
			InstanceID:        c.instanceID,
			Facade:            c.facade,
			Ledger:            c.ledger,
			ExecutionInterval: opts.Consumer.ExecutionInterval,
			AvailabilityTTL:   opts.AvailabilityTTL,
			OnRequest: func(ctx context.Context, e entry.Entry) {
				defer func() {
					if r := recover(); r != nil {
						userErr := ipcerrors.NewUserError(r)
						if c.onError != nil {
							c.onError(e, userErr)
						}
						c.RejectRequest(ctx, e, []byte(userErr.Error()))
					}
				}()
				c.onRequest(ctx, c, e)
			},
			OnError: c.onError,
			Logger:  c.logger,
		})
		if err := w.Listen(ctx); err != nil {
			return err
		}
		c.workers = append(c.workers, w)
	}

	c.dispatchers = make([]*dispatcher.Dispatcher, 0, opts.Dispatcher.Size)
	for i := 0; i < opts.Dispatcher.Size; i++ {
		d := dispatcher.New(dispatcher.Options{
			Group:               c.group,
			Name:                fmt.Sprintf("%s-dispatcher-%d", c.instanceID, i),
			InstanceID:          c.instanceID,
			Facade:              c.facade,
			ExecutionInterval:   opts.Dispatcher.ExecutionInterval,
			ReclaimMinIdle:      opts.ReclaimMinIdle,
			PublishFailureReply: opts.PublishFailureReply,
			Logger:              c.logger,
		})
		if err := d.Listen(ctx); err != nil {
			return err
		}
		c.dispatchers = append(c.dispatchers, d)
	}

	c.connected = true
	c.logger.Info("coordinator connected")
	return nil
}

// Connected reports whether Connect has completed successfully and
// Disconnect has not yet been called.
func (c *Coordinator) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Disconnect performs an orderly shutdown: dispatchers first, then
// workers, then the Redis pool.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	for _, d := range c.dispatchers {
		if err := d.StopListening(ctx); err != nil {
			c.logger.Warn("error stopping dispatcher", zap.Error(err))
		}
	}
	for _, w := range c.workers {
		if err := w.StopListening(ctx); err != nil {
			c.logger.Warn("error stopping worker", zap.Error(err))
		}
	}
	c.ledger.Stop()

	err := c.redisClient.Close()
	c.connected = false
	c.logger.Info("coordinator disconnected")
	return err
}

// SendToGroup publishes content to group `to` as a new request and
// blocks until a reply arrives or entry_timeout elapses.
func (c *Coordinator) SendToGroup(ctx context.Context, content []byte, to string) response.Response {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if !connected {
		return response.Rejected(ipcerrors.NewConnectionError("coordinator is not connected", nil))
	}

	e, err := entry.NewRequest(c.group, to, content, c.instanceID)
	if err != nil {
		return response.Rejected(ipcerrors.NewUserError(err))
	}

	mailbox, err := c.ledger.Store(e)
	if err != nil {
		return response.Rejected(err)
	}
	defer c.ledger.Delete(e)

	publishedAt := time.Now().UTC()
	published, err := c.facade.AddToStream(ctx, e)
	if err != nil {
		return response.Rejected(err)
	}

	msg := mailbox.Take(c.opts.Ledger.EntryTimeout)
	switch msg.Kind {
	case ledger.MessageReply:
		c.recordAudit(ctx, e, msg.Entry.Status, publishedAt)
		if msg.Entry.Status == entry.StatusFulfilled {
			return response.Fulfilled(msg.Entry.Content)
		}
		return response.RejectedContent(msg.Entry.Content)
	case ledger.MessageError:
		c.recordAuditStatus(ctx, e, audittrail.StatusRejected, publishedAt)
		return response.Rejected(msg.Err)
	default:
		// Nobody answered, so nobody else will delete the request.
		if err := c.facade.DeleteEntry(ctx, published); err != nil {
			c.logger.Warn("failed to delete timed-out request", zap.Error(err), zap.String(logging.FieldEntryID, e.ID))
		}
		c.recordAuditStatus(ctx, e, audittrail.StatusTimedOut, publishedAt)
		return response.Rejected(ipcerrors.ErrTimeout)
	}
}

// recordAudit persists a terminal outcome derived from an entry.Status.
func (c *Coordinator) recordAudit(ctx context.Context, e entry.Entry, status entry.Status, publishedAt time.Time) {
	auditStatus := audittrail.StatusFulfilled
	if status != entry.StatusFulfilled {
		auditStatus = audittrail.StatusRejected
	}
	c.recordAuditStatus(ctx, e, auditStatus, publishedAt)
}

func (c *Coordinator) recordAuditStatus(ctx context.Context, e entry.Entry, status audittrail.Status, publishedAt time.Time) {
	rec := audittrail.Record{
		ID:               e.ID,
		SourceGroup:      e.SourceGroup,
		DestinationGroup: e.DestinationGroup,
		InstanceID:       e.InstanceID,
		Status:           status,
		PublishedAt:      publishedAt,
		ResolvedAt:       time.Now().UTC(),
	}
	if err := c.auditTrail.Record(ctx, rec); err != nil {
		c.logger.Warn("failed to record audit trail entry", zap.Error(err), zap.String(logging.FieldEntryID, e.ID))
	}
}

// WorkerStat describes one worker's name, lifecycle state, and queue
// depth as reported by its consumer's XINFO CONSUMERS entry.
type WorkerStat struct {
	Name     string
	State    string
	Pending  int64
	IdleMs   int64
	Inactive int64
}

// DispatcherStat describes one dispatcher's name and lifecycle state.
type DispatcherStat struct {
	Name  string
	State string
}

// LedgerOutstanding returns the number of in-flight rows the ledger is
// currently tracking.
func (c *Coordinator) LedgerOutstanding() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ledger == nil {
		return 0
	}
	return c.ledger.Len()
}

// WorkerStats reports one WorkerStat per worker in this instance's pool.
func (c *Coordinator) WorkerStats(ctx context.Context) []WorkerStat {
	c.mu.RLock()
	workers := append([]*worker.Worker(nil), c.workers...)
	facade := c.facade
	group := c.group
	c.mu.RUnlock()

	if facade == nil {
		return nil
	}
	infos, err := facade.ConsumerInfo(ctx, group, "")
	if err != nil {
		infos = map[string]redisfacade.ConsumerInfo{}
	}

	stats := make([]WorkerStat, 0, len(workers))
	for _, w := range workers {
		info := infos[w.Name()]
		stats = append(stats, WorkerStat{
			Name:     w.Name(),
			State:    w.State().String(),
			Pending:  info.Pending,
			IdleMs:   info.IdleMs,
			Inactive: info.Inactive,
		})
	}
	return stats
}

// DispatcherStats reports one DispatcherStat per dispatcher in this
// instance's pool.
func (c *Coordinator) DispatcherStats() []DispatcherStat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]DispatcherStat, 0, len(c.dispatchers))
	for _, d := range c.dispatchers {
		stats = append(stats, DispatcherStat{Name: d.Name(), State: d.State().String()})
	}
	return stats
}

// FulfillRequest publishes a fulfilled reply for e carrying content.
// Never blocks.
func (c *Coordinator) FulfillRequest(ctx context.Context, e entry.Entry, content []byte) {
	now := time.Now().UTC()
	reply := e.Fulfilled(content)
	if _, err := c.facade.AddToStream(ctx, reply); err != nil {
		c.logger.Warn("failed to publish fulfilled reply", zap.Error(err), zap.String(logging.FieldEntryID, e.ID))
		return
	}
	c.recordAuditStatus(ctx, e, audittrail.StatusFulfilled, now)
}

// RejectRequest publishes a rejected reply for e carrying content.
// Never blocks.
func (c *Coordinator) RejectRequest(ctx context.Context, e entry.Entry, content []byte) {
	now := time.Now().UTC()
	reply := e.Rejected(content)
	if _, err := c.facade.AddToStream(ctx, reply); err != nil {
		c.logger.Warn("failed to publish rejected reply", zap.Error(err), zap.String(logging.FieldEntryID, e.ID))
		return
	}
	c.recordAuditStatus(ctx, e, audittrail.StatusRejected, now)
}
