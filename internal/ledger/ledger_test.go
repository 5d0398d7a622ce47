package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/itsthedevman/redis-ipc/internal/entry"
	"github.com/itsthedevman/redis-ipc/internal/ipcerrors"
)

func newTestEntry(t *testing.T) entry.Entry {
	t.Helper()
	e, err := entry.NewRequest("parent", "child", []byte("ping"), "inst-1")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return e
}

func TestStoreCreatesExactlyOneMailboxPerID(t *testing.T) {
	l := New(time.Second, nil)
	e := newTestEntry(t)

	if _, err := l.Store(e); err != nil {
		t.Fatalf("first Store: %v", err)
	}
	if _, err := l.Store(e); !errors.Is(err, ipcerrors.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID on duplicate store, got %v", err)
	}
}

func TestFetchAndContains(t *testing.T) {
	l := New(time.Second, nil)
	e := newTestEntry(t)

	if l.Contains(e) {
		t.Fatal("expected Contains to be false before Store")
	}
	if _, ok := l.Fetch(e); ok {
		t.Fatal("expected Fetch to miss before Store")
	}

	mailbox, err := l.Store(e)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !l.Contains(e) {
		t.Fatal("expected Contains to be true after Store")
	}
	fetched, ok := l.Fetch(e)
	if !ok || fetched != mailbox {
		t.Fatal("expected Fetch to return the stored mailbox")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	l := New(time.Second, nil)
	e := newTestEntry(t)
	if _, err := l.Store(e); err != nil {
		t.Fatalf("Store: %v", err)
	}
	l.Delete(e)
	l.Delete(e)
	if l.Contains(e) {
		t.Fatal("expected row to be gone after Delete")
	}
}

func TestExpiredReportsAbsentOrPastDeadline(t *testing.T) {
	l := New(10*time.Millisecond, nil)
	e := newTestEntry(t)

	if !l.Expired(e.ID) {
		t.Fatal("expected an id with no row to be expired")
	}

	if _, err := l.Store(e); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if l.Expired(e.ID) {
		t.Fatal("expected a freshly stored row to not be expired")
	}

	time.Sleep(20 * time.Millisecond)
	if !l.Expired(e.ID) {
		t.Fatal("expected the row to be expired after its deadline passed")
	}
}

func TestPutIsSingleAssignment(t *testing.T) {
	l := New(time.Second, nil)
	e := newTestEntry(t)
	mailbox, err := l.Store(e)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	reply := e.Fulfilled([]byte("pong"))
	l.Put(e, Message{Kind: MessageReply, Entry: reply})
	l.Put(e, Message{Kind: MessageReply, Entry: reply.Fulfilled([]byte("pong2"))})

	msg := mailbox.Take(time.Second)
	if msg.Kind != MessageReply || string(msg.Entry.Content) != "pong" {
		t.Fatalf("expected the first delivery to win, got %+v", msg)
	}

	select {
	case extra := <-mailbox:
		t.Fatalf("expected no second delivery, got %+v", extra)
	default:
	}
}

func TestPutOnUnknownIDIsANoop(t *testing.T) {
	l := New(time.Second, nil)
	e := newTestEntry(t)
	l.Put(e, Message{Kind: MessageReply, Entry: e})
}

func TestTakeReturnsTimeoutSentinel(t *testing.T) {
	l := New(time.Second, nil)
	e := newTestEntry(t)
	mailbox, err := l.Store(e)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	msg := mailbox.Take(5 * time.Millisecond)
	if msg.Kind != MessageTimeout {
		t.Fatalf("expected timeout sentinel, got %+v", msg)
	}
}

func TestSweeperRemovesExpiredRows(t *testing.T) {
	l := New(10*time.Millisecond, nil)
	defer l.Stop()
	e := newTestEntry(t)
	if _, err := l.Store(e); err != nil {
		t.Fatalf("Store: %v", err)
	}

	l.StartSweeper(5 * time.Millisecond)

	deadline := time.Now().Add(200 * time.Millisecond)
	for l.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if l.Len() != 0 {
		t.Fatalf("expected sweeper to remove expired row, ledger len=%d", l.Len())
	}
}

func TestSweeperNeverWakesAMailbox(t *testing.T) {
	l := New(10*time.Millisecond, nil)
	defer l.Stop()
	e := newTestEntry(t)
	mailbox, err := l.Store(e)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	l.StartSweeper(5 * time.Millisecond)

	time.Sleep(50 * time.Millisecond)

	select {
	case msg := <-mailbox:
		t.Fatalf("expected sweeper to never write to the mailbox, got %+v", msg)
	default:
	}
}
