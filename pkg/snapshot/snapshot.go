// Package snapshot manages ephemeral repository checkouts.
//
// A Snapshot is owned by exactly one operation. Release removes the
// checkout and is safe to call more than once; only the first call acts.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrAcquire wraps every failure to produce a checkout.
var ErrAcquire = errors.New("failed to acquire repository snapshot")

// Snapshot is a local checkout plus the action that disposes of it.
type Snapshot struct {
	path    string
	release func() error

	once sync.Once
	err  error
}

// New binds path to release. A nil release makes Release a no-op.
func New(path string, release func() error) *Snapshot {
	return &Snapshot{path: path, release: release}
}

// Existing wraps a checkout owned by someone else. Releasing it does nothing.
func Existing(path string) *Snapshot {
	return New(path, nil)
}

func (s *Snapshot) Path() string {
	return s.path
}

// Release runs the cleanup action once and returns its result on every call.
func (s *Snapshot) Release() error {
	s.once.Do(func() {
		if s.release != nil {
			s.err = s.release()
		}
	})
	return s.err
}

// Provider produces checkouts of a repository.
type Provider interface {
	Acquire(ctx context.Context, repoFullName, credential string) (*Snapshot, error)
}

// Acquire returns Existing(existingPath) when a path is supplied, and
// otherwise asks provider for a fresh checkout.
func Acquire(ctx context.Context, provider Provider, repoFullName, credential, existingPath string) (*Snapshot, error) {
	if existingPath != "" {
		return Existing(existingPath), nil
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: no snapshot provider configured", ErrAcquire)
	}
	snap, err := provider.Acquire(ctx, repoFullName, credential)
	if err != nil {
		if errors.Is(err, ErrAcquire) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}
	return snap, nil
}

// With runs fn against a checkout and releases it on every exit path,
// panics included. A release failure is returned only when fn succeeded.
func With(ctx context.Context, provider Provider, repoFullName, credential, existingPath string, fn func(path string) error) (err error) {
	snap, err := Acquire(ctx, provider, repoFullName, credential, existingPath)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := snap.Release(); rerr != nil && err == nil {
			err = fmt.Errorf("release snapshot: %w", rerr)
		}
	}()
	return fn(snap.Path())
}
