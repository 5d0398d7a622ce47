package entry

import "testing"

func TestNewGeneratesID(t *testing.T) {
	e, err := New(Params{SourceGroup: "a", DestinationGroup: "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.ID) != 32 {
		t.Fatalf("expected 32-char id, got %d chars: %q", len(e.ID), e.ID)
	}
	if e.Status != StatusPending {
		t.Fatalf("expected default status pending, got %q", e.Status)
	}
}

func TestNewRejectsInvalidStatus(t *testing.T) {
	_, err := New(Params{Status: "bogus"})
	if err == nil {
		t.Fatal("expected error for invalid status")
	}
}

func TestNewRequestRejectsEqualGroups(t *testing.T) {
	_, err := NewRequest("parent", "parent", []byte("ping"), "")
	if err == nil {
		t.Fatal("expected error when source equals destination")
	}
}

func TestFulfilledSwapsGroupsAndPreservesID(t *testing.T) {
	req, err := NewRequest("parent", "child", []byte("ping"), "inst-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reply := req.Fulfilled([]byte("pong"))

	if reply.ID != req.ID {
		t.Fatalf("expected id to be preserved, got %q want %q", reply.ID, req.ID)
	}
	if reply.Status != StatusFulfilled {
		t.Fatalf("expected status fulfilled, got %q", reply.Status)
	}
	if reply.SourceGroup != "child" || reply.DestinationGroup != "parent" {
		t.Fatalf("expected swapped groups, got source=%q destination=%q", reply.SourceGroup, reply.DestinationGroup)
	}
	if string(reply.Content) != "pong" {
		t.Fatalf("expected content pong, got %q", reply.Content)
	}
	if string(req.Content) != "ping" {
		t.Fatal("original entry must not be mutated")
	}
}

func TestRejectedSwapsGroups(t *testing.T) {
	req, err := NewRequest("a", "b", []byte("q"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply := req.Rejected([]byte("no"))
	if reply.Status != StatusRejected {
		t.Fatalf("expected status rejected, got %q", reply.Status)
	}
	if reply.SourceGroup != "b" || reply.DestinationGroup != "a" {
		t.Fatalf("expected swapped groups, got source=%q destination=%q", reply.SourceGroup, reply.DestinationGroup)
	}
}

func TestEqualByID(t *testing.T) {
	a, _ := New(Params{ID: "same-id"})
	b, _ := New(Params{ID: "same-id", Content: []byte("different")})
	if !a.Equal(b) {
		t.Fatal("expected entries with the same id to be equal")
	}
}

func TestToValuesOmitsRedisIDAndOptionalInstance(t *testing.T) {
	e, _ := New(Params{ID: "x", SourceGroup: "a", DestinationGroup: "b", Content: []byte("hi")})
	e.RedisID = "1-0"
	values := e.ToValues()
	if _, ok := values["redis_id"]; ok {
		t.Fatal("redis_id must never be part of the wire field map")
	}
	if _, ok := values["instance_id"]; ok {
		t.Fatal("instance_id must be omitted when empty")
	}

	withInstance, _ := New(Params{ID: "y", InstanceID: "inst-1"})
	values = withInstance.ToValues()
	if values["instance_id"] != "inst-1" {
		t.Fatalf("expected instance_id to be present, got %v", values["instance_id"])
	}
}
