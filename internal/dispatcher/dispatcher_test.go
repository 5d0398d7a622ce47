package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/itsthedevman/redis-ipc/internal/entry"
	"github.com/itsthedevman/redis-ipc/internal/ipcerrors"
	"github.com/itsthedevman/redis-ipc/internal/redisfacade"
)

func newTestFacade(t *testing.T) (*redisfacade.Facade, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run error: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	adapter := &redisfacade.ClientAdapter{Client: client}
	return redisfacade.New(adapter, "test-stream"), s
}

func TestListenRefusesWithoutAvailableWorkers(t *testing.T) {
	facade, mr := newTestFacade(t)
	defer mr.Close()
	ctx := context.Background()

	if err := facade.CreateGroup(ctx, "child"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	d := New(Options{
		Group:      "child",
		Name:       "dispatcher-1",
		InstanceID: "inst-1",
		Facade:     facade,
	})

	err := d.Listen(ctx)
	if err == nil {
		t.Fatal("expected Listen to refuse when no workers are available")
	}
	var cfgErr *ipcerrors.ConfigurationError
	if !asConfigError(err, &cfgErr) {
		t.Fatalf("expected a ConfigurationError, got %T: %v", err, err)
	}
}

func asConfigError(err error, target **ipcerrors.ConfigurationError) bool {
	ce, ok := err.(*ipcerrors.ConfigurationError)
	if ok {
		*target = ce
	}
	return ok
}

func TestListenSucceedsWithAvailableWorker(t *testing.T) {
	facade, mr := newTestFacade(t)
	defer mr.Close()
	ctx := context.Background()

	if err := facade.CreateGroup(ctx, "child"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := facade.MakeConsumerAvailable(ctx, "child", "inst-1", "worker-1", time.Hour); err != nil {
		t.Fatalf("MakeConsumerAvailable: %v", err)
	}

	d := New(Options{
		Group:             "child",
		Name:              "dispatcher-1",
		InstanceID:        "inst-1",
		Facade:            facade,
		ExecutionInterval: time.Millisecond,
	})

	if err := d.Listen(ctx); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer d.StopListening(ctx)

	if d.State() != StateRunning {
		t.Fatalf("expected state running, got %s", d.State())
	}
}

func TestTickAckDropsEntryForOtherGroup(t *testing.T) {
	facade, mr := newTestFacade(t)
	defer mr.Close()
	ctx := context.Background()

	if err := facade.CreateGroup(ctx, "this-group"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	d := New(Options{
		Group:      "this-group",
		Name:       "dispatcher-1",
		InstanceID: "inst-1",
		Facade:     facade,
	})

	e, err := entry.NewRequest("parent", "other-group", []byte("x"), "inst-9")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := facade.AddToStream(ctx, e); err != nil {
		t.Fatalf("AddToStream: %v", err)
	}

	d.Tick(ctx)

	infos, err := facade.ConsumerInfo(ctx, "this-group", "dispatcher-1")
	if err != nil {
		t.Fatalf("ConsumerInfo: %v", err)
	}
	if info, ok := infos["dispatcher-1"]; ok && info.Pending != 0 {
		t.Fatalf("expected the foreign entry to be ack-dropped, pending=%d", info.Pending)
	}

	n, err := facade.StreamLength(ctx)
	if err != nil {
		t.Fatalf("StreamLength: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the entry to remain in the stream for the correct group, stream length=%d", n)
	}
}

func TestTickDispatchesRequestToLeastBusyWorker(t *testing.T) {
	facade, mr := newTestFacade(t)
	defer mr.Close()
	ctx := context.Background()

	if err := facade.CreateGroup(ctx, "child"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := facade.MakeConsumerAvailable(ctx, "child", "inst-1", "worker-1", time.Hour); err != nil {
		t.Fatalf("MakeConsumerAvailable worker-1: %v", err)
	}
	if err := facade.MakeConsumerAvailable(ctx, "child", "inst-1", "worker-2", time.Hour); err != nil {
		t.Fatalf("MakeConsumerAvailable worker-2: %v", err)
	}

	d := New(Options{
		Group:      "child",
		Name:       "dispatcher-1",
		InstanceID: "inst-1",
		Facade:     facade,
	})

	req, err := entry.NewRequest("parent", "child", []byte("ping"), "inst-1")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	published, err := facade.AddToStream(ctx, req)
	if err != nil {
		t.Fatalf("AddToStream: %v", err)
	}

	d.Tick(ctx)

	claimedBy := ""
	for _, name := range []string{"worker-1", "worker-2"} {
		got, ok, err := facade.NextPendingEntry(ctx, "child", name)
		if err != nil {
			t.Fatalf("NextPendingEntry(%s): %v", name, err)
		}
		if ok && got.Equal(published) {
			claimedBy = name
		}
	}
	if claimedBy == "" {
		t.Fatal("expected the request to be claimed by one of the two workers")
	}
}

func TestDispatchFailureAcksWithoutRequeueAndCanPublishReply(t *testing.T) {
	facade, mr := newTestFacade(t)
	defer mr.Close()
	ctx := context.Background()

	if err := facade.CreateGroup(ctx, "child"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := facade.CreateGroup(ctx, "parent"); err != nil {
		t.Fatalf("CreateGroup parent: %v", err)
	}

	d := New(Options{
		Group:               "child",
		Name:                "dispatcher-1",
		InstanceID:          "inst-1",
		Facade:              facade,
		PublishFailureReply: true,
	})

	req, err := entry.NewRequest("parent", "child", []byte("ping"), "inst-1")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := facade.AddToStream(ctx, req); err != nil {
		t.Fatalf("AddToStream: %v", err)
	}

	d.Tick(ctx)

	infos, err := facade.ConsumerInfo(ctx, "child", "dispatcher-1")
	if err != nil {
		t.Fatalf("ConsumerInfo: %v", err)
	}
	if info, ok := infos["dispatcher-1"]; ok && info.Pending != 0 {
		t.Fatalf("expected the undeliverable request to be acked, pending=%d", info.Pending)
	}

	// The parent group was created before the request was published, so
	// the request itself is the first unread entry it sees.
	first, ok, err := facade.NextUnreadEntry(ctx, "parent", "caller")
	if err != nil {
		t.Fatalf("NextUnreadEntry: %v", err)
	}
	if !ok || first.Status != entry.StatusPending {
		t.Fatal("expected the original request to be read first")
	}

	got, ok, err := facade.NextUnreadEntry(ctx, "parent", "caller")
	if err != nil {
		t.Fatalf("NextUnreadEntry: %v", err)
	}
	if !ok {
		t.Fatal("expected a rejected reply to have been published")
	}
	if got.Status != entry.StatusRejected {
		t.Fatalf("expected status rejected, got %q", got.Status)
	}
	if !got.Equal(req) {
		t.Fatalf("expected the reply to carry the original request's id")
	}
}
