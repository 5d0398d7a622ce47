// Package ledger implements the local correlation table from outstanding
// request ids to the mailboxes awaiting their replies.
package ledger

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itsthedevman/redis-ipc/internal/entry"
	"github.com/itsthedevman/redis-ipc/internal/ipcerrors"
	"github.com/itsthedevman/redis-ipc/internal/logging"
)

// MessageKind distinguishes the three shapes a mailbox delivery can take.
type MessageKind int

const (
	MessageReply MessageKind = iota
	MessageError
	MessageTimeout
)

// Message is whatever a mailbox eventually yields: a reply entry, an
// error, or nothing (on timeout). Only one of these is ever observed,
// per the mailbox's single-assignment guarantee.
type Message struct {
	Kind  MessageKind
	Entry entry.Entry
	Err   error
}

// Mailbox is a single-assignment rendezvous slot. Exactly one Put call
// ever succeeds; later ones are dropped silently.
type Mailbox chan Message

// Take blocks until a message is put into the mailbox or deadline
// elapses, whichever comes first.
func (m Mailbox) Take(deadline time.Duration) Message {
	select {
	case msg := <-m:
		return msg
	case <-time.After(deadline):
		return Message{Kind: MessageTimeout}
	}
}

// row is the ledger's internal bookkeeping for one outstanding id.
type row struct {
	mailbox   Mailbox
	expiresAt time.Time
}

// Ledger is a thread-safe map from entry id to its awaiting mailbox.
type Ledger struct {
	mu            sync.Mutex
	rows          map[string]*row
	entryTimeout  time.Duration
	cleanupTicker *time.Ticker
	stopCh        chan struct{}
	stopOnce      sync.Once
	logger        *zap.Logger
}

// New builds an empty Ledger. entryTimeout sets each row's deadline
// relative to the moment it is stored.
func New(entryTimeout time.Duration, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		rows:         make(map[string]*row),
		entryTimeout: entryTimeout,
		stopCh:       make(chan struct{}),
		logger:       logger.With(zap.String(logging.FieldComponent, logging.ComponentLedger)),
	}
}

// Store creates a new row and mailbox for e.ID. It fails if a row
// already exists for that id.
func (l *Ledger) Store(e entry.Entry) (Mailbox, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.rows[e.ID]; exists {
		return nil, ipcerrors.ErrDuplicateID
	}

	mailbox := make(Mailbox, 1)
	l.rows[e.ID] = &row{
		mailbox:   mailbox,
		expiresAt: time.Now().Add(l.entryTimeout),
	}
	return mailbox, nil
}

// Fetch returns the mailbox stored for e.ID, if any.
func (l *Ledger) Fetch(e entry.Entry) (Mailbox, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rows[e.ID]
	if !ok {
		return nil, false
	}
	return r.mailbox, true
}

// Contains reports whether a row exists for e.ID.
func (l *Ledger) Contains(e entry.Entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.rows[e.ID]
	return ok
}

// Delete removes the row for e.ID. Idempotent.
func (l *Ledger) Delete(e entry.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rows, e.ID)
}

// Expired reports whether id is absent, or its deadline has passed.
func (l *Ledger) Expired(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[id]
	if !ok {
		return true
	}
	return time.Now().After(r.expiresAt)
}

// Put delivers msg to the mailbox for e.ID, if one is still waiting.
// Non-blocking: a mailbox that already holds a value silently drops
// this delivery, implementing at-most-one-reply-delivered.
func (l *Ledger) Put(e entry.Entry, msg Message) {
	mailbox, ok := l.Fetch(e)
	if !ok {
		return
	}
	select {
	case mailbox <- msg:
	default:
	}
}

// Len reports the number of outstanding rows.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

// StartSweeper launches the background goroutine that deletes expired
// rows every cleanupInterval. It never wakes a waiting mailbox: timeout
// is discovered by the caller's own bounded Take, not by the sweeper.
func (l *Ledger) StartSweeper(cleanupInterval time.Duration) {
	l.cleanupTicker = time.NewTicker(cleanupInterval)
	go func() {
		for {
			select {
			case <-l.cleanupTicker.C:
				l.sweep()
			case <-l.stopCh:
				return
			}
		}
	}()
}

func (l *Ledger) sweep() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, r := range l.rows {
		if now.After(r.expiresAt) {
			delete(l.rows, id)
			l.logger.Debug("swept expired ledger row", zap.String(logging.FieldEntryID, id))
		}
	}
}

// Stop halts the sweeper goroutine. Safe to call multiple times.
func (l *Ledger) Stop() {
	l.stopOnce.Do(func() {
		if l.cleanupTicker != nil {
			l.cleanupTicker.Stop()
		}
		close(l.stopCh)
	})
}
