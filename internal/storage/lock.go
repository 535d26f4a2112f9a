package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
)

const (
	defaultLockTimeout = 5 * time.Second
	defaultLockBackoff = 25 * time.Millisecond
	maxLockBackoff     = 500 * time.Millisecond
)

// keyedLocker serializes writers per key. Within the process a one-slot
// channel per key gives context-aware waiting; across processes an advisory
// flock on a lock file does the same. Distinct keys never contend.
type keyedLocker struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	timeout time.Duration
	backoff time.Duration
}

func newKeyedLocker(timeout, backoff time.Duration) *keyedLocker {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	if backoff <= 0 {
		backoff = defaultLockBackoff
	}
	return &keyedLocker{
		slots:   make(map[string]chan struct{}),
		timeout: timeout,
		backoff: backoff,
	}
}

func (l *keyedLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

// acquire takes the lock for key, backed by the lock file at path. It returns
// ErrLockTimeout if either layer cannot be taken before the timeout.
func (l *keyedLocker) acquire(ctx context.Context, key, path string) (unlock func(), err error) {
	deadline := time.Now().Add(l.timeout)
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	s := l.slot(key)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrLockTimeout
	}

	release, err := l.flock(ctx, path, deadline)
	if err != nil {
		<-s
		return nil, err
	}
	return func() {
		release()
		<-s
	}, nil
}

// flock takes an exclusive non-blocking flock on path, retrying with bounded
// exponential backoff until the deadline.
func (l *keyedLocker) flock(ctx context.Context, path string, deadline time.Time) (func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	wait := l.backoff
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) && !errors.Is(err, syscall.EINTR) {
			_ = f.Close()
			return nil, fmt.Errorf("acquiring file lock: %w", err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			_ = f.Close()
			return nil, ErrLockTimeout
		}
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxLockBackoff {
			wait = maxLockBackoff
		}
	}

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}
