package redisfacade

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itsthedevman/redis-ipc/internal/entry"
	"github.com/itsthedevman/redis-ipc/internal/ipcerrors"
)

// defaultReclaimIdle is the minimum idle time before an entry is eligible
// for autoclaim by next_reclaimed_entry.
const defaultReclaimIdle = 10 * time.Second

// Facade is the narrow Redis command surface the coordinator, worker and
// dispatcher depend on. It holds no state beyond the client and the
// stream it was built for; the group is passed to each call.
type Facade struct {
	client Client
	stream string
}

// New builds a Facade bound to stream.
func New(client Client, stream string) *Facade {
	return &Facade{client: client, stream: stream}
}

// AddToStream publishes e's wire fields and returns a copy with RedisID
// populated from the server-generated id.
func (f *Facade) AddToStream(ctx context.Context, e entry.Entry) (entry.Entry, error) {
	id, err := f.client.XAdd(ctx, &redis.XAddArgs{
		Stream: f.stream,
		Values: e.ToValues(),
	})
	if err != nil {
		return entry.Entry{}, ipcerrors.NewConnectionError("failed to publish entry", err)
	}
	e.RedisID = id
	return e, nil
}

// ReadFromStream reads at most one entry for group/consumer using cursor
// (">" for unread, "0" for the consumer's own pending list). blockMs of
// zero performs a non-blocking read.
func (f *Facade) ReadFromStream(ctx context.Context, group, consumer, cursor string, blockMs time.Duration) (entry.Entry, bool, error) {
	streams, err := f.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{f.stream, cursor},
		Count:    1,
		Block:    blockMs,
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entry.Entry{}, false, nil
		}
		return entry.Entry{}, false, ipcerrors.NewConnectionError("failed to read from stream", err)
	}
	for _, s := range streams {
		for _, msg := range s.Messages {
			return fromMessage(msg), true, nil
		}
	}
	return entry.Entry{}, false, nil
}

// NextUnreadEntry wraps ReadFromStream with cursor ">".
func (f *Facade) NextUnreadEntry(ctx context.Context, group, consumer string) (entry.Entry, bool, error) {
	return f.ReadFromStream(ctx, group, consumer, ">", 0)
}

// NextPendingEntry wraps ReadFromStream with cursor "0": the consumer's
// own pending list, a failsafe for entries claimed but never handled off.
func (f *Facade) NextPendingEntry(ctx context.Context, group, consumer string) (entry.Entry, bool, error) {
	return f.ReadFromStream(ctx, group, consumer, "0", 0)
}

// NextReclaimedEntry autoclaims one entry idle longer than minIdle (zero
// uses the 10s default) into consumer. Failsafe for crashed workers.
func (f *Facade) NextReclaimedEntry(ctx context.Context, group, consumer string, minIdle time.Duration) (entry.Entry, bool, error) {
	if minIdle <= 0 {
		minIdle = defaultReclaimIdle
	}
	msgs, _, err := f.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   f.stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0",
		Count:    1,
	})
	if err != nil {
		if isBenignGroupError(err) {
			return entry.Entry{}, false, nil
		}
		return entry.Entry{}, false, ipcerrors.NewConnectionError("failed to autoclaim entry", err)
	}
	if len(msgs) == 0 {
		return entry.Entry{}, false, nil
	}
	return fromMessage(msgs[0]), true, nil
}

// ClaimEntry moves e into consumer's pending list with minimum-idle zero.
func (f *Facade) ClaimEntry(ctx context.Context, group, consumer string, e entry.Entry) error {
	_, err := f.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   f.stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  0,
		Messages: []string{e.RedisID},
	})
	if err != nil {
		return ipcerrors.NewConnectionError("failed to claim entry", err)
	}
	return nil
}

// AcknowledgeEntry removes e from group's PEL. Idempotent: "not found" is
// swallowed.
func (f *Facade) AcknowledgeEntry(ctx context.Context, group string, e entry.Entry) error {
	_, err := f.client.XAck(ctx, f.stream, group, e.RedisID)
	if err != nil {
		return ipcerrors.NewConnectionError("failed to ack entry", err)
	}
	return nil
}

// DeleteEntry removes e from the stream outright. Idempotent.
func (f *Facade) DeleteEntry(ctx context.Context, e entry.Entry) error {
	_, err := f.client.XDel(ctx, f.stream, e.RedisID)
	if err != nil {
		return ipcerrors.NewConnectionError("failed to delete entry", err)
	}
	return nil
}

// CreateGroup creates the consumer group, using mkstream and start id "$"
// (skip history). BUSYGROUP is swallowed.
func (f *Facade) CreateGroup(ctx context.Context, group string) error {
	err := f.client.XGroupCreateMkStream(ctx, f.stream, group, "$")
	if err != nil && !isBenignGroupError(err) {
		return ipcerrors.NewConnectionError("failed to create group", err)
	}
	return nil
}

// DestroyGroup removes the consumer group. Missing-group is swallowed.
func (f *Facade) DestroyGroup(ctx context.Context, group string) error {
	_, err := f.client.XGroupDestroy(ctx, f.stream, group)
	if err != nil && !isBenignGroupError(err) {
		return ipcerrors.NewConnectionError("failed to destroy group", err)
	}
	return nil
}

// DeleteStream removes the stream key entirely.
func (f *Facade) DeleteStream(ctx context.Context) error {
	_, err := f.client.Del(ctx, f.stream)
	if err != nil {
		return ipcerrors.NewConnectionError("failed to delete stream", err)
	}
	return nil
}

// CreateConsumer registers consumer under group. Idempotent.
func (f *Facade) CreateConsumer(ctx context.Context, group, consumer string) error {
	_, err := f.client.XGroupCreateConsumer(ctx, f.stream, group, consumer)
	if err != nil && !isBenignGroupError(err) {
		return ipcerrors.NewConnectionError("failed to create consumer", err)
	}
	return nil
}

// DeleteConsumer removes consumer from group. Idempotent.
func (f *Facade) DeleteConsumer(ctx context.Context, group, consumer string) error {
	_, err := f.client.XGroupDelConsumer(ctx, f.stream, group, consumer)
	if err != nil && !isBenignGroupError(err) {
		return ipcerrors.NewConnectionError("failed to delete consumer", err)
	}
	return nil
}

// PruneConsumers deletes every registered consumer in group that has zero
// pending entries and is not in active (the currently-available set),
// reclaiming idle consumer registrations left behind by crashed workers.
func (f *Facade) PruneConsumers(ctx context.Context, group string, active map[string]bool) error {
	infos, err := f.ConsumerInfo(ctx, group, "")
	if err != nil {
		return err
	}
	for name, info := range infos {
		if active[name] || info.Pending > 0 {
			continue
		}
		if err := f.DeleteConsumer(ctx, group, name); err != nil {
			return err
		}
	}
	return nil
}

// ConsumerInfo describes one consumer's queue depth and idle state, as
// used by the dispatcher's load-balancing comparator.
type ConsumerInfo struct {
	Pending  int64
	IdleMs   int64
	Inactive int64
}

// ConsumerInfo returns a one-shot snapshot of every consumer in group,
// optionally restricted to filterFor (empty means all).
func (f *Facade) ConsumerInfo(ctx context.Context, group, filterFor string) (map[string]ConsumerInfo, error) {
	infos, err := f.client.XInfoConsumers(ctx, f.stream, group)
	if err != nil {
		if isBenignGroupError(err) {
			return map[string]ConsumerInfo{}, nil
		}
		return nil, ipcerrors.NewConnectionError("failed to read consumer info", err)
	}
	out := make(map[string]ConsumerInfo, len(infos))
	for _, info := range infos {
		if filterFor != "" && info.Name != filterFor {
			continue
		}
		out[info.Name] = ConsumerInfo{
			Pending:  info.Pending,
			IdleMs:   info.Idle.Milliseconds(),
			Inactive: info.Inactive.Milliseconds(),
		}
	}
	return out, nil
}

func availabilityKey(stream, group, instance string) string {
	return stream + ":" + group + ":" + instance + ":consumers"
}

// AvailableConsumerNames reads the availability list for instance.
func (f *Facade) AvailableConsumerNames(ctx context.Context, group, instance string) ([]string, error) {
	names, err := f.client.LRange(ctx, availabilityKey(f.stream, group, instance), 0, -1)
	if err != nil {
		return nil, ipcerrors.NewConnectionError("failed to read availability list", err)
	}
	return names, nil
}

// ConsumerAvailable reports whether name is currently listed available.
func (f *Facade) ConsumerAvailable(ctx context.Context, group, instance, name string) (bool, error) {
	names, err := f.AvailableConsumerNames(ctx, group, instance)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// MakeConsumerAvailable idempotently adds name to instance's availability
// list and refreshes its expiry.
func (f *Facade) MakeConsumerAvailable(ctx context.Context, group, instance, name string, ttl time.Duration) error {
	already, err := f.ConsumerAvailable(ctx, group, instance, name)
	if err != nil {
		return err
	}
	key := availabilityKey(f.stream, group, instance)
	if !already {
		if _, err := f.client.RPush(ctx, key, name); err != nil {
			return ipcerrors.NewConnectionError("failed to mark consumer available", err)
		}
	}
	if ttl > 0 {
		if _, err := f.client.Expire(ctx, key, ttl); err != nil {
			return ipcerrors.NewConnectionError("failed to refresh availability expiry", err)
		}
	}
	return nil
}

// MakeConsumerUnavailable idempotently removes name from instance's
// availability list.
func (f *Facade) MakeConsumerUnavailable(ctx context.Context, group, instance, name string) error {
	_, err := f.client.LRem(ctx, availabilityKey(f.stream, group, instance), 0, name)
	if err != nil {
		return ipcerrors.NewConnectionError("failed to mark consumer unavailable", err)
	}
	return nil
}

// StreamLength returns the current length of the stream.
func (f *Facade) StreamLength(ctx context.Context) (int64, error) {
	n, err := f.client.XLen(ctx, f.stream)
	if err != nil {
		return 0, ipcerrors.NewConnectionError("failed to read stream length", err)
	}
	return n, nil
}

// fromMessage decodes a stream message leniently: an invalid or
// missing status is preserved rather than rejected, so the caller's
// classification step can still observe and purge it instead of the
// entry being stuck unacked and redelivered indefinitely.
func fromMessage(msg redis.XMessage) entry.Entry {
	values := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		if s, ok := v.(string); ok {
			values[k] = s
		}
	}
	e := entry.FromWire(values)
	e.RedisID = msg.ID
	return e
}

// isBenignGroupError reports whether err is one of the command errors
// that are harmless in this domain: the group/consumer already existing,
// or the target of an admin op already being gone.
func isBenignGroupError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "BUSYGROUP") ||
		strings.Contains(msg, "NOGROUP") ||
		strings.Contains(msg, "no such key")
}
