package redisfacade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/itsthedevman/redis-ipc/internal/entry"
)

func newTestFacade(t *testing.T) (*Facade, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run error: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	adapter := &ClientAdapter{Client: client}
	return New(adapter, "test-stream"), s
}

func TestIsBenignGroupError(t *testing.T) {
	tests := []struct {
		err    error
		expect bool
	}{
		{nil, false},
		{errors.New("some error"), false},
		{errors.New("BUSYGROUP Consumer Group name already exists"), true},
		{errors.New("NOGROUP No such key 'test-stream' or consumer group"), true},
	}
	for _, tc := range tests {
		if got := isBenignGroupError(tc.err); got != tc.expect {
			t.Errorf("isBenignGroupError(%v) = %v, want %v", tc.err, got, tc.expect)
		}
	}
}

func TestCreateGroupIsIdempotent(t *testing.T) {
	f, s := newTestFacade(t)
	defer s.Close()
	ctx := context.Background()

	if err := f.CreateGroup(ctx, "g"); err != nil {
		t.Fatalf("first CreateGroup: %v", err)
	}
	if err := f.CreateGroup(ctx, "g"); err != nil {
		t.Fatalf("second CreateGroup should be idempotent, got: %v", err)
	}
}

func TestAddToStreamPopulatesRedisID(t *testing.T) {
	f, s := newTestFacade(t)
	defer s.Close()
	ctx := context.Background()

	e, err := entry.NewRequest("parent", "child", []byte("ping"), "inst-1")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	published, err := f.AddToStream(ctx, e)
	if err != nil {
		t.Fatalf("AddToStream: %v", err)
	}
	if published.RedisID == "" {
		t.Fatal("expected RedisID to be populated")
	}
	if !published.Equal(e) {
		t.Fatal("expected published entry to retain the original id")
	}
}

func TestNextUnreadEntryRoundTrip(t *testing.T) {
	f, s := newTestFacade(t)
	defer s.Close()
	ctx := context.Background()

	if err := f.CreateGroup(ctx, "child"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	e, err := entry.NewRequest("parent", "child", []byte("ping"), "inst-1")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := f.AddToStream(ctx, e); err != nil {
		t.Fatalf("AddToStream: %v", err)
	}

	got, ok, err := f.NextUnreadEntry(ctx, "child", "worker-1")
	if err != nil {
		t.Fatalf("NextUnreadEntry: %v", err)
	}
	if !ok {
		t.Fatal("expected an entry to be available")
	}
	if !got.Equal(e) {
		t.Fatalf("expected entry id %q, got %q", e.ID, got.ID)
	}
	if got.Content == nil || string(got.Content) != "ping" {
		t.Fatalf("expected content %q, got %q", "ping", got.Content)
	}

	_, ok, err = f.NextUnreadEntry(ctx, "child", "worker-1")
	if err != nil {
		t.Fatalf("second NextUnreadEntry: %v", err)
	}
	if ok {
		t.Fatal("expected no further unread entries")
	}
}

func TestNextPendingEntryReturnsClaimedButUnhandled(t *testing.T) {
	f, s := newTestFacade(t)
	defer s.Close()
	ctx := context.Background()

	if err := f.CreateGroup(ctx, "child"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	e, err := entry.NewRequest("parent", "child", []byte("ping"), "inst-1")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := f.AddToStream(ctx, e); err != nil {
		t.Fatalf("AddToStream: %v", err)
	}
	if _, _, err := f.NextUnreadEntry(ctx, "child", "worker-1"); err != nil {
		t.Fatalf("NextUnreadEntry: %v", err)
	}

	got, ok, err := f.NextPendingEntry(ctx, "child", "worker-1")
	if err != nil {
		t.Fatalf("NextPendingEntry: %v", err)
	}
	if !ok {
		t.Fatal("expected the unacked entry to still be pending")
	}
	if !got.Equal(e) {
		t.Fatal("expected the same entry back")
	}
}

func TestAcknowledgeAndDeleteEntryAreIdempotent(t *testing.T) {
	f, s := newTestFacade(t)
	defer s.Close()
	ctx := context.Background()

	if err := f.CreateGroup(ctx, "child"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	e, err := entry.NewRequest("parent", "child", []byte("ping"), "inst-1")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	published, err := f.AddToStream(ctx, e)
	if err != nil {
		t.Fatalf("AddToStream: %v", err)
	}
	if _, _, err := f.NextUnreadEntry(ctx, "child", "worker-1"); err != nil {
		t.Fatalf("NextUnreadEntry: %v", err)
	}

	if err := f.AcknowledgeEntry(ctx, "child", published); err != nil {
		t.Fatalf("first ack: %v", err)
	}
	if err := f.AcknowledgeEntry(ctx, "child", published); err != nil {
		t.Fatalf("second ack should be idempotent, got: %v", err)
	}

	if err := f.DeleteEntry(ctx, published); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := f.DeleteEntry(ctx, published); err != nil {
		t.Fatalf("second delete should be idempotent, got: %v", err)
	}

	n, err := f.StreamLength(ctx)
	if err != nil {
		t.Fatalf("StreamLength: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected stream length 0 after ack+delete, got %d", n)
	}
}

func TestAvailabilityListIsIdempotent(t *testing.T) {
	f, s := newTestFacade(t)
	defer s.Close()
	ctx := context.Background()

	if err := f.MakeConsumerAvailable(ctx, "child", "inst-1", "worker-1", time.Hour); err != nil {
		t.Fatalf("first MakeConsumerAvailable: %v", err)
	}
	if err := f.MakeConsumerAvailable(ctx, "child", "inst-1", "worker-1", time.Hour); err != nil {
		t.Fatalf("second MakeConsumerAvailable should be idempotent, got: %v", err)
	}

	names, err := f.AvailableConsumerNames(ctx, "child", "inst-1")
	if err != nil {
		t.Fatalf("AvailableConsumerNames: %v", err)
	}
	if len(names) != 1 || names[0] != "worker-1" {
		t.Fatalf("expected exactly one entry 'worker-1', got %v", names)
	}

	available, err := f.ConsumerAvailable(ctx, "child", "inst-1", "worker-1")
	if err != nil {
		t.Fatalf("ConsumerAvailable: %v", err)
	}
	if !available {
		t.Fatal("expected worker-1 to be available")
	}

	if err := f.MakeConsumerUnavailable(ctx, "child", "inst-1", "worker-1"); err != nil {
		t.Fatalf("MakeConsumerUnavailable: %v", err)
	}
	if err := f.MakeConsumerUnavailable(ctx, "child", "inst-1", "worker-1"); err != nil {
		t.Fatalf("second MakeConsumerUnavailable should be idempotent, got: %v", err)
	}

	names, err = f.AvailableConsumerNames(ctx, "child", "inst-1")
	if err != nil {
		t.Fatalf("AvailableConsumerNames after removal: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty availability list, got %v", names)
	}
}

func TestConsumerInfoReflectsPendingCount(t *testing.T) {
	f, s := newTestFacade(t)
	defer s.Close()
	ctx := context.Background()

	if err := f.CreateGroup(ctx, "child"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	e, err := entry.NewRequest("parent", "child", []byte("ping"), "inst-1")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := f.AddToStream(ctx, e); err != nil {
		t.Fatalf("AddToStream: %v", err)
	}
	if _, _, err := f.NextUnreadEntry(ctx, "child", "worker-1"); err != nil {
		t.Fatalf("NextUnreadEntry: %v", err)
	}

	infos, err := f.ConsumerInfo(ctx, "child", "")
	if err != nil {
		t.Fatalf("ConsumerInfo: %v", err)
	}
	info, ok := infos["worker-1"]
	if !ok {
		t.Fatal("expected worker-1 to be present in the snapshot")
	}
	if info.Pending != 1 {
		t.Fatalf("expected pending count 1, got %d", info.Pending)
	}
}

func TestDestroyGroupAndDeleteStreamAreIdempotent(t *testing.T) {
	f, s := newTestFacade(t)
	defer s.Close()
	ctx := context.Background()

	if err := f.CreateGroup(ctx, "child"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := f.DestroyGroup(ctx, "child"); err != nil {
		t.Fatalf("first DestroyGroup: %v", err)
	}
	if err := f.DestroyGroup(ctx, "child"); err != nil {
		t.Fatalf("second DestroyGroup should be idempotent, got: %v", err)
	}
	if err := f.DeleteStream(ctx); err != nil {
		t.Fatalf("DeleteStream: %v", err)
	}
}
