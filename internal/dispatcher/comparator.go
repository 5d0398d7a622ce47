package dispatcher

import "github.com/itsthedevman/redis-ipc/internal/redisfacade"

// candidate is one worker name plus its consumer_info snapshot, or the
// absence of one (never seen by Redis, so truly idle).
type candidate struct {
	name    string
	info    redisfacade.ConsumerInfo
	present bool
}

// rankKey collapses the cascaded load-balancing rule into a single
// sortable tuple: absent-from-snapshot first, then fewer
// pending, then (when pending ties and the worker is active) larger
// idle, then larger idle as the final tiebreak. Lower tuples rank
// ahead (are preferred).
type rankKey struct {
	absent      int
	pending     int64
	idleIfTied  int64
	idleOverall int64
}

func rankOf(c candidate) rankKey {
	if !c.present {
		return rankKey{absent: 0}
	}
	k := rankKey{
		absent:      1,
		pending:     c.info.Pending,
		idleOverall: -c.info.IdleMs,
	}
	if c.info.Inactive == 0 {
		k.idleIfTied = -c.info.IdleMs
	}
	return k
}

// less reports whether a ranks strictly ahead of b: a strict weak
// order, so cmp(a,b) and cmp(b,a) never both hold.
func less(a, b candidate) bool {
	ka, kb := rankOf(a), rankOf(b)
	if ka.absent != kb.absent {
		return ka.absent < kb.absent
	}
	if ka.absent == 0 {
		return false
	}
	if ka.pending != kb.pending {
		return ka.pending < kb.pending
	}
	if ka.idleIfTied != kb.idleIfTied {
		return ka.idleIfTied < kb.idleIfTied
	}
	return ka.idleOverall < kb.idleOverall
}

// leastBusy picks the candidate ranking ahead of all others. names with
// no entry in infos are treated as absent (present=false).
func leastBusy(names []string, infos map[string]redisfacade.ConsumerInfo) (string, bool) {
	if len(names) == 0 {
		return "", false
	}
	best := candidate{name: names[0]}
	if info, ok := infos[names[0]]; ok {
		best.info, best.present = info, true
	}
	for _, name := range names[1:] {
		c := candidate{name: name}
		if info, ok := infos[name]; ok {
			c.info, c.present = info, true
		}
		if less(c, best) {
			best = c
		}
	}
	return best.name, true
}
