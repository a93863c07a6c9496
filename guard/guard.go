package guard

import (
	stderrors "errors"
	"io"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/resguard"
	"github.com/wippyai/resguard/errors"
	"github.com/wippyai/resguard/registry"
)

// Option configures a guard at acquisition time.
type Option func(*options)

type options struct {
	logger *zap.Logger
	reg    *registry.Registry
	name   string
	owned  []resguard.Releasable
}

// WithName sets the resource name used in errors, log fields, and
// registry entries. The default is "resource".
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger used by the fallback release path of this
// guard, overriding the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOwned attaches sub-resources owned by the guard. They are
// released in reverse order after the handle's own release action, on
// the explicit path only.
func WithOwned(rs ...resguard.Releasable) Option {
	return func(o *options) {
		o.owned = append(o.owned, rs...)
	}
}

// WithRegistry tracks the guard in reg until it is released. A leaked
// guard reports itself to the registry from the fallback path.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *options) {
		o.reg = reg
	}
}

// Guard wraps one externally-owned handle and guarantees its release
// action runs exactly once. The zero value is not usable; construct
// guards with Acquire, With, or Closer.
//
// All methods are safe for concurrent use.
type Guard[T any] struct {
	s       *state[T]
	cleanup runtime.Cleanup
}

// state carries everything the fallback path needs. The cleanup must
// not reference the Guard itself, or the guard would never become
// unreachable.
type state[T any] struct {
	value    T
	release  func(T) error
	logger   *zap.Logger
	reg      *registry.Registry
	owned    []resguard.Releasable
	name     string
	handle   registry.Handle
	released atomic.Bool
}

// Acquire constructs a guard taking ownership of value. The release
// action runs exactly once, on Release or on the fallback path. A nil
// release is allowed and treated as a no-op action.
func Acquire[T any](value T, release func(T) error, opts ...Option) *Guard[T] {
	o := options{
		name:   "resource",
		logger: Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &state[T]{
		value:   value,
		release: release,
		name:    o.name,
		logger:  o.logger,
		owned:   o.owned,
		reg:     o.reg,
	}

	if s.reg != nil {
		h, err := s.reg.Track(s.name, s)
		if err != nil {
			s.logger.Warn("guard not tracked",
				zap.String("resource", s.name),
				zap.Error(err))
			s.reg = nil
		} else {
			s.handle = h
		}
	}

	g := &Guard[T]{s: s}
	g.cleanup = runtime.AddCleanup(g, (*state[T]).fallback, s)
	return g
}

// Closer guards any io.Closer, using Close as the release action.
func Closer(c io.Closer, opts ...Option) *Guard[io.Closer] {
	return Acquire[io.Closer](c, func(c io.Closer) error { return c.Close() }, opts...)
}

// With acquires a guard over value, runs fn, and releases on every exit
// path: normal return, early return, or panic inside fn. A release
// error is joined with fn's error.
func With[T any](value T, release func(T) error, fn func(*Guard[T]) error, opts ...Option) (err error) {
	g := Acquire(value, release, opts...)
	defer func() {
		if rerr := g.Release(); rerr != nil {
			err = stderrors.Join(err, rerr)
		}
	}()
	return fn(g)
}

// Release runs the release action if it has not run yet and cancels the
// pending fallback cleanup. The first call surfaces any release error;
// later calls are no-ops returning nil. The release action runs at most
// once even when it fails.
func (g *Guard[T]) Release() error {
	g.cleanup.Stop()
	return g.s.doRelease(false)
}

// Released reports whether the release action has run.
func (g *Guard[T]) Released() bool {
	return g.s.released.Load()
}

// Name returns the resource name.
func (g *Guard[T]) Name() string {
	return g.s.name
}

// Handle returns the registry handle for a tracked guard, or 0 when the
// guard is not tracked.
func (g *Guard[T]) Handle() registry.Handle {
	return g.s.handle
}

// Value returns the guarded handle, or errors.AlreadyReleased after
// release.
func (g *Guard[T]) Value() (T, error) {
	if g.s.released.Load() {
		var zero T
		return zero, errors.AlreadyReleased(g.s.name)
	}
	return g.s.value, nil
}

// Do runs fn with the guarded handle, or fails with
// errors.AlreadyReleased after release.
func (g *Guard[T]) Do(fn func(T) error) error {
	v, err := g.Value()
	if err != nil {
		return err
	}
	return fn(v)
}

// Release implements resguard.Releasable on the inner state, so a
// registry can release a still-tracked guard on Close. The guard's
// cleanup stays armed, but the released flag makes it a no-op.
func (s *state[T]) Release() error {
	return s.doRelease(false)
}

// fallback runs on the runtime's cleanup goroutine when the guard was
// dropped without an explicit release.
func (s *state[T]) fallback() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in fallback release",
				zap.String("resource", s.name),
				zap.Any("panic", r))
		}
	}()
	s.doRelease(true)
}

// doRelease is the single release routine for both paths. The handle's
// own release action runs on either path; owned sub-resources run on
// the explicit path only, since the fallback path cannot guarantee
// teardown ordering. Errors surface to the caller on the explicit path
// and are logged on the fallback path, where no caller remains.
func (s *state[T]) doRelease(fallback bool) error {
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if s.release != nil {
		err = s.release(s.value)
	}

	if !fallback {
		if oerr := resguard.ReleaseAll(s.owned...); oerr != nil {
			err = stderrors.Join(err, oerr)
		}
	}

	if s.reg != nil {
		if fallback {
			s.reg.MarkLeaked(s.handle)
		} else {
			s.reg.Untrack(s.handle)
		}
	}

	if fallback {
		if err != nil {
			s.logger.Warn("fallback release failed",
				zap.String("resource", s.name),
				zap.Error(err))
		}
		return nil
	}

	if err != nil {
		return errors.ReleaseFailed(s.name, err)
	}
	return nil
}
