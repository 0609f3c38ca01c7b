package ledger

import (
	"sort"
	"sync"
)

// accountLocks serializes mutations per account. Adjustments to different
// accounts proceed in parallel; multi-account operations always acquire in
// sorted id order so two trades settling in opposite directions cannot
// deadlock.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (al *accountLocks) get(userID string) *sync.Mutex {
	al.mu.Lock()
	defer al.mu.Unlock()
	l, ok := al.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		al.locks[userID] = l
	}
	return l
}

// lockAll acquires every account's mutex in sorted order and returns the
// matching unlock function.
func (al *accountLocks) lockAll(userIDs []string) func() {
	ids := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	held := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		l := al.get(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
