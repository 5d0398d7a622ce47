// Package redisfacade wraps go-redis/v9 behind the narrow set of stream
// commands the coordinator needs, swallowing the command errors that are
// benign in this domain (group already exists, entry already acked) while
// letting transport failures propagate.
package redisfacade

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the subset of go-redis operations the façade depends on.
// Production code and tests alike wrap a *redis.Client via
// ClientAdapter; the tests point theirs at a miniredis server.
type Client interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) (string, error)
	XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]redis.XStream, error)
	XAck(ctx context.Context, stream, group string, ids ...string) (int64, error)
	XDel(ctx context.Context, stream string, ids ...string) (int64, error)
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) error
	XGroupDestroy(ctx context.Context, stream, group string) (int64, error)
	XGroupCreateConsumer(ctx context.Context, stream, group, consumer string) (int64, error)
	XGroupDelConsumer(ctx context.Context, stream, group, consumer string) (int64, error)
	XPendingExt(ctx context.Context, args *redis.XPendingExtArgs) ([]redis.XPendingExt, error)
	XClaim(ctx context.Context, args *redis.XClaimArgs) ([]redis.XMessage, error)
	XAutoClaim(ctx context.Context, args *redis.XAutoClaimArgs) ([]redis.XMessage, []string, error)
	XInfoConsumers(ctx context.Context, stream, group string) ([]redis.XInfoConsumer, error)
	XLen(ctx context.Context, stream string) (int64, error)
	Del(ctx context.Context, keys ...string) (int64, error)

	RPush(ctx context.Context, key string, values ...interface{}) (int64, error)
	LRem(ctx context.Context, key string, count int64, value interface{}) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
}

// ClientAdapter adapts *redis.Client to Client.
type ClientAdapter struct {
	Client *redis.Client
}

func (a *ClientAdapter) XAdd(ctx context.Context, args *redis.XAddArgs) (string, error) {
	return a.Client.XAdd(ctx, args).Result()
}

func (a *ClientAdapter) XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]redis.XStream, error) {
	return a.Client.XReadGroup(ctx, args).Result()
}

func (a *ClientAdapter) XAck(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	return a.Client.XAck(ctx, stream, group, ids...).Result()
}

func (a *ClientAdapter) XDel(ctx context.Context, stream string, ids ...string) (int64, error) {
	return a.Client.XDel(ctx, stream, ids...).Result()
}

func (a *ClientAdapter) XGroupCreateMkStream(ctx context.Context, stream, group, start string) error {
	return a.Client.XGroupCreateMkStream(ctx, stream, group, start).Err()
}

func (a *ClientAdapter) XGroupDestroy(ctx context.Context, stream, group string) (int64, error) {
	return a.Client.XGroupDestroy(ctx, stream, group).Result()
}

func (a *ClientAdapter) XGroupCreateConsumer(ctx context.Context, stream, group, consumer string) (int64, error) {
	return a.Client.XGroupCreateConsumer(ctx, stream, group, consumer).Result()
}

func (a *ClientAdapter) XGroupDelConsumer(ctx context.Context, stream, group, consumer string) (int64, error) {
	return a.Client.XGroupDelConsumer(ctx, stream, group, consumer).Result()
}

func (a *ClientAdapter) XPendingExt(ctx context.Context, args *redis.XPendingExtArgs) ([]redis.XPendingExt, error) {
	return a.Client.XPendingExt(ctx, args).Result()
}

func (a *ClientAdapter) XClaim(ctx context.Context, args *redis.XClaimArgs) ([]redis.XMessage, error) {
	return a.Client.XClaim(ctx, args).Result()
}

func (a *ClientAdapter) XAutoClaim(ctx context.Context, args *redis.XAutoClaimArgs) ([]redis.XMessage, []string, error) {
	msgs, cursor, err := a.Client.XAutoClaim(ctx, args).Result()
	return msgs, cursor, err
}

func (a *ClientAdapter) XInfoConsumers(ctx context.Context, stream, group string) ([]redis.XInfoConsumer, error) {
	return a.Client.XInfoConsumers(ctx, stream, group).Result()
}

func (a *ClientAdapter) XLen(ctx context.Context, stream string) (int64, error) {
	return a.Client.XLen(ctx, stream).Result()
}

func (a *ClientAdapter) Del(ctx context.Context, keys ...string) (int64, error) {
	return a.Client.Del(ctx, keys...).Result()
}

func (a *ClientAdapter) RPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	return a.Client.RPush(ctx, key, values...).Result()
}

func (a *ClientAdapter) LRem(ctx context.Context, key string, count int64, value interface{}) (int64, error) {
	return a.Client.LRem(ctx, key, count, value).Result()
}

func (a *ClientAdapter) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return a.Client.LRange(ctx, key, start, stop).Result()
}

func (a *ClientAdapter) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return a.Client.Expire(ctx, key, expiration).Result()
}
