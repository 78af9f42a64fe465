package pipeline

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()

	const workers = 32
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("subject-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("counter = %d, want %d", counter, workers)
	}
}

func TestKeyedMutexKeysAreIndependent(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("subject-a")
	defer unlockA()

	// A held lock on one key must not block another key; if it did, this
	// test would hang and fail on the suite deadline.
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("subject-b")
		unlockB()
		close(done)
	}()
	<-done
}

func TestKeyedMutexReusableAfterUnlock(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock("subject-1")
	unlock()

	// Same key locks again without deadlock.
	unlock = km.Lock("subject-1")
	unlock()
}

func TestKeyedMutexDropsIdleEntries(t *testing.T) {
	km := newKeyedMutex()

	// Action IDs are unique per decision; the map must not grow with
	// every key ever locked.
	for i := 0; i < 10000; i++ {
		unlock := km.Lock(fmt.Sprintf("act-%d", i))
		unlock()
	}

	if n := km.size(); n != 0 {
		t.Errorf("retained %d entries after all unlocks, want 0", n)
	}
}

func TestKeyedMutexKeepsContendedEntry(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock("act-1")

	acquired := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		waiterUnlock := km.Lock("act-1")
		close(acquired)
		<-release
		waiterUnlock()
	}()

	// Wait until the second holder is queued on the entry.
	for {
		km.mu.Lock()
		queued := km.locks["act-1"] != nil && km.locks["act-1"].refs == 2
		km.mu.Unlock()
		if queued {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// The first unlock hands the entry to the waiter instead of dropping it.
	unlock()
	<-acquired
	if n := km.size(); n != 1 {
		t.Errorf("entry dropped while still held, size = %d, want 1", n)
	}

	close(release)
	<-done
	if n := km.size(); n != 0 {
		t.Errorf("retained %d entries after last unlock, want 0", n)
	}
}

func TestKeyedMutexConcurrentChurnLeavesNoEntries(t *testing.T) {
	km := newKeyedMutex()

	const workers = 16
	const iterations = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				// Overlapping key space so creations race with removals.
				unlock := km.Lock(fmt.Sprintf("subject-%d", i%8))
				unlock()
			}
		}(w)
	}
	wg.Wait()

	if n := km.size(); n != 0 {
		t.Errorf("retained %d entries after churn, want 0", n)
	}
}
