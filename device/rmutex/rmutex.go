// Package rmutex implements the cross-process, crash-tolerant mutex this
// driver uses to serialize access to shared hardware resources (TLB
// configuration registers, ARC messaging) between independent processes
// that have each opened the same chip. A named mutex survives the death
// of whichever process last held it: the file lock backing it is
// released by the kernel the moment the holding process exits or is
// killed, for any reason, so there is no separate owner-death detection
// or recovery step to get wrong.
//
// Grounded on original_source/device/utils/robust_mutex.cpp's two-layer
// design — an in-process mutex nested inside a cross-process lock, so
// threads within one process serialize cheaply while processes serialize
// through the kernel — adapted from pthread robust mutexes in shared
// memory to a plain flock, since Go has no PTHREAD_MUTEX_ROBUST
// equivalent and ordinary POSIX advisory locks already give us
// release-on-crash for free. The on-disk naming convention
// ("TT_UMD_LOCK.<name>" under a shared directory, world-writable
// permissions so any user can contend for the same chip) is kept from
// the original. The PID of this process is recorded when a Mutex value
// is locked and cleared on Unlock; nothing reads it, and the
// slow-acquisition warning does not name the holder, which for a
// contended file lock is another process whose PID is not recorded
// anywhere this package can see.
//
// Libs: github.com/gofrs/flock for the cross-process advisory lock.
package rmutex

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/tenstorrent/tt-umd-sub002/ttumdlog"
	"github.com/tenstorrent/tt-umd-sub002/ttumdmetrics"
)

const (
	lockPrefix   = "TT_UMD_LOCK."
	lockDir      = "/dev/shm"
	fastPathWait = time.Second
	pollInterval = 5 * time.Millisecond
)

// Mutex is a named, cross-process, crash-tolerant lock. One Mutex value
// may be shared by any number of goroutines, which its intra mutex
// serializes; New can also be called repeatedly for the same name from
// different processes and each call contends for the same underlying
// file lock.
type Mutex struct {
	name string
	path string

	// intra serializes goroutines within this process; flock alone
	// only guarantees mutual exclusion between processes, not between
	// threads of the same process holding independent *flock.Flock
	// handles to the same path (the first open already holds the lock,
	// so a second in-process Lock call would otherwise recurse past
	// the OS into undefined behavior).
	intra sync.Mutex
	fl    *flock.Flock

	mu        sync.Mutex // guards held/ownerPID below
	held      bool
	ownerPID  int
}

// New returns a Mutex named after the given string, backed by a file
// under lockDir. Distinct processes that call New with the same name
// contend for the same lock.
func New(name string) *Mutex {
	path := filepath.Join(lockDir, lockPrefix+name)
	createWorldWritable(path)
	return &Mutex{
		name: name,
		path: path,
		fl:   flock.New(path),
	}
}

// createWorldWritable ensures the lock file exists with 0666 permissions
// regardless of this process's umask, so any user can contend for the same
// chip's lock even though flock.New itself does not open the file until the
// first Lock call. Clearing the umask only around this one open keeps it
// from leaking into any other file this process creates.
func createWorldWritable(path string) {
	old := unix.Umask(0)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0666)
	unix.Umask(old)
	if err != nil {
		ttumdlog.Default().Warnf("rmutex: could not pre-create lock file %s with world-writable permissions: %v", path, err)
		return
	}
	f.Close()
}

// Lock acquires the mutex, blocking until it is free. It polls the file
// lock; if the lock is still held by another process after one second it
// logs one warning naming the lock (not its holder), counts the slow
// acquisition, and keeps waiting, mirroring the original's
// ETIMEDOUT/EOWNERDEAD handling without needing the EOWNERDEAD branch at
// all.
func (m *Mutex) Lock() error {
	m.intra.Lock()

	ok, err := m.fl.TryLock()
	if err != nil {
		m.intra.Unlock()
		return fmt.Errorf("rmutex: flock %s: %w", m.path, err)
	}
	if !ok {
		deadline := time.Now().Add(fastPathWait)
		warned := false
		for {
			ok, err = m.fl.TryLock()
			if err != nil {
				m.intra.Unlock()
				return fmt.Errorf("rmutex: flock %s: %w", m.path, err)
			}
			if ok {
				break
			}
			if !warned && time.Now().After(deadline) {
				ttumdlog.Default().Warnf("rmutex: lock %q still contended after %s", m.name, fastPathWait)
				ttumdmetrics.RobustMutexWaits.Inc()
				warned = true
			}
			time.Sleep(pollInterval)
		}
	}

	m.mu.Lock()
	m.held = true
	m.ownerPID = os.Getpid()
	m.mu.Unlock()
	return nil
}

// Unlock releases the mutex. Unlock on a Mutex that is not held is a
// programming error and returns an error rather than panicking, so a
// caller's own error-handling path can log and continue.
func (m *Mutex) Unlock() error {
	m.mu.Lock()
	if !m.held {
		m.mu.Unlock()
		return fmt.Errorf("rmutex: Unlock of %q which is not held", m.name)
	}
	m.held = false
	m.ownerPID = 0
	m.mu.Unlock()

	err := m.fl.Unlock()
	m.intra.Unlock()
	if err != nil {
		return fmt.Errorf("rmutex: flock unlock %s: %w", m.path, err)
	}
	return nil
}

// WithLock runs fn while holding the mutex, always unlocking afterward.
func (m *Mutex) WithLock(fn func() error) error {
	if err := m.Lock(); err != nil {
		return err
	}
	defer m.Unlock()
	return fn()
}

// Close releases the underlying file handle. It does not remove the lock
// file: other processes may still be contending for it, and the file's
// continued existence carries no state worth cleaning up (flock locks
// are not stored in the file's bytes).
func (m *Mutex) Close() error {
	return m.fl.Close()
}
