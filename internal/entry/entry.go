// Package entry defines the immutable value type that crosses the wire
// between coordinators: one request or reply on a Redis stream.
package entry

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an Entry. Pending is the only
// non-terminal value; Fulfilled and Rejected are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFulfilled, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is a terminal (non-pending) status.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusRejected
}

// Entry is an immutable description of one stream message. RedisID is
// populated on publish and is never part of the wire field map.
type Entry struct {
	ID               string
	RedisID          string
	Status           Status
	Content          []byte
	SourceGroup      string
	DestinationGroup string
	InstanceID       string
}

// Params describes the fields used to build an Entry. ID and Status are
// optional: an empty ID generates a fresh one, an empty Status defaults
// to StatusPending.
type Params struct {
	ID               string
	Status           Status
	Content          []byte
	SourceGroup      string
	DestinationGroup string
	InstanceID       string
}

// New validates params and builds an Entry. An invalid status fails
// construction; a missing ID is generated.
func New(p Params) (Entry, error) {
	status := p.Status
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return Entry{}, fmt.Errorf("entry: invalid status %q", p.Status)
	}

	id := p.ID
	if id == "" {
		id = newID()
	}

	return Entry{
		ID:               id,
		Status:           status,
		Content:          p.Content,
		SourceGroup:      p.SourceGroup,
		DestinationGroup: p.DestinationGroup,
		InstanceID:       p.InstanceID,
	}, nil
}

// FromWire decodes the field map read off a stream message into an
// Entry without validating Status. A status that doesn't match any
// enumerated value is preserved as-is rather than rejected, so a
// malformed or foreign entry can still be classified and purged
// instead of failing to decode and being retried forever.
func FromWire(values map[string]string) Entry {
	return Entry{
		ID:               values["id"],
		Status:           Status(values["status"]),
		Content:          []byte(values["content"]),
		SourceGroup:      values["source_group"],
		DestinationGroup: values["destination_group"],
		InstanceID:       values["instance_id"],
	}
}

// NewRequest builds a pending entry for a fresh outbound request. The
// source and destination groups must differ.
func NewRequest(sourceGroup, destinationGroup string, content []byte, instanceID string) (Entry, error) {
	if sourceGroup == destinationGroup {
		return Entry{}, fmt.Errorf("entry: source_group and destination_group must differ, both are %q", sourceGroup)
	}
	return New(Params{
		Status:           StatusPending,
		Content:          content,
		SourceGroup:      sourceGroup,
		DestinationGroup: destinationGroup,
		InstanceID:       instanceID,
	})
}

// Fulfilled returns a new terminal entry: same id, status fulfilled,
// source/destination swapped, content replaced. It does not mutate e.
func (e Entry) Fulfilled(content []byte) Entry {
	return e.reply(StatusFulfilled, content)
}

// Rejected returns a new terminal entry: same id, status rejected,
// source/destination swapped, content replaced. It does not mutate e.
func (e Entry) Rejected(content []byte) Entry {
	return e.reply(StatusRejected, content)
}

func (e Entry) reply(status Status, content []byte) Entry {
	return Entry{
		ID:               e.ID,
		Status:           status,
		Content:          content,
		SourceGroup:      e.DestinationGroup,
		DestinationGroup: e.SourceGroup,
		InstanceID:       e.InstanceID,
	}
}

// Equal compares entries by id only; a reply carries different content
// and status from its request but keeps the same id.
func (e Entry) Equal(other Entry) bool {
	return e.ID == other.ID
}

// ToValues renders the entry as the field-value map written to the
// Redis stream. RedisID is never included; it is assigned by Redis.
func (e Entry) ToValues() map[string]interface{} {
	values := map[string]interface{}{
		"id":                e.ID,
		"status":            string(e.Status),
		"content":           string(e.Content),
		"source_group":      e.SourceGroup,
		"destination_group": e.DestinationGroup,
	}
	if e.InstanceID != "" {
		values["instance_id"] = e.InstanceID
	}
	return values
}

// newID generates a 32-character hex correlation id from a fresh UUID,
// stripped of its dashes.
func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
