// Package lock provides keyed mutual exclusion. The delivery accountant
// uses it to serialize quota debits per account id.
package lock

import (
	"sync"

	"github.com/apex/log"
)

type IDLocker struct {
	mapMutex sync.Mutex
	idMap    map[int]*sync.Mutex
}

func NewIDLocker() *IDLocker {
	return &IDLocker{
		idMap: make(map[int]*sync.Mutex),
	}
}

// AcquireLock blocks until the caller holds the mutex for id. Mutexes are
// created on first use and never reclaimed; the id space here is account
// ids, which is small enough not to care.
func (l *IDLocker) AcquireLock(id int) {
	l.mapMutex.Lock()
	idMutex, ok := l.idMap[id]
	if !ok {
		idMutex = &sync.Mutex{}
		l.idMap[id] = idMutex
	}
	l.mapMutex.Unlock()

	idMutex.Lock()
}

func (l *IDLocker) ReleaseLock(id int) {
	l.mapMutex.Lock()
	idMutex, ok := l.idMap[id]
	l.mapMutex.Unlock()

	if !ok {
		log.Errorf("ReleaseLock called on id (%d) with no mutex", id)
		return
	}

	idMutex.Unlock()
}

func (l *IDLocker) WithLock(id int, f func() error) error {
	l.AcquireLock(id)
	defer l.ReleaseLock(id)
	return f()
}
