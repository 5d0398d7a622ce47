package dispatcher

import (
	"testing"

	"github.com/itsthedevman/redis-ipc/internal/redisfacade"
)

func TestRankAbsentBeatsPresent(t *testing.T) {
	absent := candidate{name: "a"}
	present := candidate{name: "b", present: true, info: redisfacade.ConsumerInfo{Pending: 0}}
	if !less(absent, present) {
		t.Fatal("expected an absent candidate to rank ahead of a present one")
	}
	if less(present, absent) {
		t.Fatal("expected the reverse comparison to not also hold")
	}
}

func TestRankFewerPendingWins(t *testing.T) {
	a := candidate{name: "a", present: true, info: redisfacade.ConsumerInfo{Pending: 1}}
	b := candidate{name: "b", present: true, info: redisfacade.ConsumerInfo{Pending: 3}}
	if !less(a, b) {
		t.Fatal("expected fewer pending to rank ahead")
	}
}

func TestRankIdleTiebreakWhenActive(t *testing.T) {
	a := candidate{name: "a", present: true, info: redisfacade.ConsumerInfo{Pending: 2, Inactive: 0, IdleMs: 500}}
	b := candidate{name: "b", present: true, info: redisfacade.ConsumerInfo{Pending: 2, Inactive: 0, IdleMs: 100}}
	if !less(a, b) {
		t.Fatal("expected the longer-idle active worker to rank ahead on a pending tie")
	}
}

func TestRankFinalIdleTiebreak(t *testing.T) {
	a := candidate{name: "a", present: true, info: redisfacade.ConsumerInfo{Pending: 2, Inactive: 5, IdleMs: 900}}
	b := candidate{name: "b", present: true, info: redisfacade.ConsumerInfo{Pending: 2, Inactive: 5, IdleMs: 100}}
	if !less(a, b) {
		t.Fatal("expected larger idle to win the final tiebreak")
	}
}

func TestRankIsStrictWeakOrder(t *testing.T) {
	candidates := []candidate{
		{name: "a"},
		{name: "b", present: true, info: redisfacade.ConsumerInfo{Pending: 0, IdleMs: 10}},
		{name: "c", present: true, info: redisfacade.ConsumerInfo{Pending: 1, IdleMs: 500}},
		{name: "d", present: true, info: redisfacade.ConsumerInfo{Pending: 1, IdleMs: 500, Inactive: 10}},
	}
	for _, x := range candidates {
		for _, y := range candidates {
			if less(x, y) && less(y, x) {
				t.Fatalf("antisymmetry violated for %q vs %q", x.name, y.name)
			}
		}
	}
	for _, x := range candidates {
		for _, y := range candidates {
			for _, z := range candidates {
				if less(x, y) && less(y, z) && !less(x, z) {
					t.Fatalf("transitivity violated for %q < %q < %q", x.name, y.name, z.name)
				}
			}
		}
	}
}

func TestLeastBusyPrefersAbsentThenFewerPending(t *testing.T) {
	infos := map[string]redisfacade.ConsumerInfo{
		"busy": {Pending: 5, IdleMs: 10},
		"idle": {Pending: 0, IdleMs: 10},
	}
	got, ok := leastBusy([]string{"busy", "idle", "never-seen"}, infos)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if got != "never-seen" {
		t.Fatalf("expected the never-seen consumer to win, got %q", got)
	}

	got, ok = leastBusy([]string{"busy", "idle"}, infos)
	if !ok || got != "idle" {
		t.Fatalf("expected the consumer with fewer pending entries to win, got %q", got)
	}
}

func TestLeastBusyEmptySet(t *testing.T) {
	if _, ok := leastBusy(nil, nil); ok {
		t.Fatal("expected no candidate for an empty name list")
	}
}
