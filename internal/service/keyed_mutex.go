package service

import (
	"slices"
	"sync"
)

// keyedMutex hands out one lock per key. Entries are dropped once no caller
// holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires every key in sorted order and returns the matching unlock.
func (k *keyedMutex) Lock(keys ...string) func() {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*keyedLock, 0, len(keys))
	for _, key := range keys {
		held = append(held, k.acquire(key))
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.release(keys[i], held[i])
		}
	}
}

func (k *keyedMutex) acquire(key string) *keyedLock {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (k *keyedMutex) release(key string, lock *keyedLock) {
	lock.mu.Unlock()

	k.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
