package tasks

import "sync"

// keyedMutex hands out one mutex per key so operations on distinct tasks run
// concurrently while same-id operations serialize. Entries are reference
// counted and removed once the last holder releases.
type keyedMutex struct {
	edit    sync.Mutex
	waiters map[string]int
	mutexes map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		waiters: make(map[string]int),
		mutexes: make(map[string]*sync.Mutex),
	}
}

func (m *keyedMutex) Lock(key string) {
	m.edit.Lock()
	mu, ok := m.mutexes[key]
	if !ok {
		mu = &sync.Mutex{}
		m.mutexes[key] = mu
	}
	m.waiters[key]++
	m.edit.Unlock()

	mu.Lock()
}

func (m *keyedMutex) Unlock(key string) {
	m.edit.Lock()
	defer m.edit.Unlock()

	mu, ok := m.mutexes[key]
	if !ok {
		return
	}

	mu.Unlock()
	m.waiters[key]--

	if m.waiters[key] == 0 {
		delete(m.mutexes, key)
		delete(m.waiters, key)
	}
}
