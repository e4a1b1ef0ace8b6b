package service

import (
	"fmt"
	"sort"
	"sync"
)

// keyLocker hands out mutexes by name. Keys are always taken in sorted
// order so two callers locking overlapping sets cannot deadlock.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*keyLock)}
}

func (l *keyLocker) Lock(keys ...string) (unlock func()) {
	unique := make(map[string]struct{}, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, seen := unique[k]; seen {
			continue
		}
		unique[k] = struct{}{}
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	held := make([]string, 0, len(ordered))
	for _, k := range ordered {
		l.mu.Lock()
		kl, ok := l.locks[k]
		if !ok {
			kl = &keyLock{}
			l.locks[k] = kl
		}
		kl.refs++
		l.mu.Unlock()

		kl.mu.Lock()
		held = append(held, k)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.mu.Lock()
			kl := l.locks[held[i]]
			kl.refs--
			if kl.refs == 0 {
				delete(l.locks, held[i])
			}
			l.mu.Unlock()
			kl.mu.Unlock()
		}
	}
}

func taskKey(id uint) string { return fmt.Sprintf("task:%d", id) }
func userKey(id uint) string { return fmt.Sprintf("user:%d", id) }
