package ledger

import (
	"sync"

	"github.com/warp/leave-engine/domain"
)

// keyLocks linearizes read-latest-then-append per BalanceKey. Different keys
// never contend. Entries are dropped once no goroutine holds or waits.
type keyLocks struct {
	mu    sync.Mutex
	locks map[domain.BalanceKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[domain.BalanceKey]*keyLock)}
}

// lock blocks until key is free and returns its unlock func.
func (k *keyLocks) lock(key domain.BalanceKey) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
