package guard

import (
	stderrors "errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/resguard"
	"github.com/wippyai/resguard/errors"
	"github.com/wippyai/resguard/registry"
)

type fakeHandle struct {
	closes  atomic.Int32
	failErr error
}

func (h *fakeHandle) close() error {
	h.closes.Add(1)
	return h.failErr
}

func TestGuard_Lifecycle(t *testing.T) {
	h := &fakeHandle{}
	g := Acquire(h, (*fakeHandle).close, WithName("fake"))

	// Use while active.
	used := false
	if err := g.Do(func(*fakeHandle) error { used = true; return nil }); err != nil {
		t.Fatalf("Do on active guard failed: %v", err)
	}
	if !used {
		t.Fatal("Do did not run the body")
	}

	// First release runs the action.
	if err := g.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("expected 1 close, got %d", h.closes.Load())
	}
	if !g.Released() {
		t.Fatal("Released() should be true")
	}

	// Second release is a no-op.
	if err := g.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got %v", err)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("close ran twice: %d", h.closes.Load())
	}

	// Use after release fails.
	err := g.Do(func(*fakeHandle) error { return nil })
	if !errors.IsAlreadyReleased(err) {
		t.Fatalf("expected AlreadyReleased, got %v", err)
	}
	if _, err := g.Value(); !errors.IsAlreadyReleased(err) {
		t.Fatalf("expected AlreadyReleased from Value, got %v", err)
	}
}

func TestGuard_ReleaseError(t *testing.T) {
	cause := stderrors.New("close failed")
	h := &fakeHandle{failErr: cause}
	g := Acquire(h, (*fakeHandle).close, WithName("flaky"))

	err := g.Release()
	if err == nil {
		t.Fatal("expected release error")
	}
	if !stderrors.Is(err, cause) {
		t.Fatalf("release error should wrap the cause, got %v", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindReleaseFailed {
		t.Fatalf("expected release_failed error, got %v", err)
	}

	// The action ran once and is not retried.
	if err := g.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got %v", err)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("expected 1 close, got %d", h.closes.Load())
	}
}

func TestGuard_ConcurrentRelease(t *testing.T) {
	h := &fakeHandle{}
	g := Acquire(h, (*fakeHandle).close)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Release()
		}()
	}
	wg.Wait()

	if h.closes.Load() != 1 {
		t.Fatalf("expected exactly 1 close under concurrent Release, got %d", h.closes.Load())
	}
}

func TestGuard_OwnedReleasedInReverseOrder(t *testing.T) {
	var order []string
	mark := func(name string) resguard.Releasable {
		return resguard.ReleaseFunc(func() error {
			order = append(order, name)
			return nil
		})
	}

	h := &fakeHandle{}
	g := Acquire(h, func(h *fakeHandle) error {
		order = append(order, "handle")
		return h.close()
	}, WithOwned(mark("first"), mark("second")))

	if err := g.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	want := []string{"handle", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestGuard_OwnedErrorJoined(t *testing.T) {
	ownedErr := stderrors.New("owned close failed")
	h := &fakeHandle{}
	g := Acquire(h, (*fakeHandle).close,
		WithOwned(resguard.ReleaseFunc(func() error { return ownedErr })))

	err := g.Release()
	if !stderrors.Is(err, ownedErr) {
		t.Fatalf("expected owned error to surface, got %v", err)
	}
}

func TestWith_ReleasesOnError(t *testing.T) {
	bodyErr := stderrors.New("mid-scope failure")
	h := &fakeHandle{}

	err := With(h, (*fakeHandle).close, func(g *Guard[*fakeHandle]) error {
		return bodyErr
	})

	if !stderrors.Is(err, bodyErr) {
		t.Fatalf("body error should surface, got %v", err)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("resource not released after error exit: %d closes", h.closes.Load())
	}
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	h := &fakeHandle{}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = With(h, (*fakeHandle).close, func(*Guard[*fakeHandle]) error {
			panic("boom")
		})
	}()

	if h.closes.Load() != 1 {
		t.Fatalf("resource not released after panic: %d closes", h.closes.Load())
	}
}

func TestWith_JoinsReleaseError(t *testing.T) {
	cause := stderrors.New("close failed")
	h := &fakeHandle{failErr: cause}

	err := With(h, (*fakeHandle).close, func(*Guard[*fakeHandle]) error {
		return nil
	})

	if !stderrors.Is(err, cause) {
		t.Fatalf("release error should surface from With, got %v", err)
	}
}

// leakGuard acquires a guard in its own frame and drops every reference
// to it, so the caller can force collection.
func leakGuard(h *fakeHandle, opts ...Option) {
	_ = Acquire(h, (*fakeHandle).close, opts...)
}

func waitForCloses(t *testing.T, h *fakeHandle, want int32) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for h.closes.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("fallback release did not run, %d closes", h.closes.Load())
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGuard_FallbackRelease(t *testing.T) {
	h := &fakeHandle{}
	leakGuard(h)

	waitForCloses(t, h, 1)

	// A few more cycles must not release again.
	for i := 0; i < 3; i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("fallback released more than once: %d", h.closes.Load())
	}
}

func TestGuard_FallbackSkipsOwned(t *testing.T) {
	var ownedReleased atomic.Bool
	h := &fakeHandle{}
	leakGuard(h, WithOwned(resguard.ReleaseFunc(func() error {
		ownedReleased.Store(true)
		return nil
	})))

	waitForCloses(t, h, 1)

	if ownedReleased.Load() {
		t.Fatal("owned sub-resource must not be released on the fallback path")
	}
}

func TestGuard_FallbackContainsError(t *testing.T) {
	// A failing release action on the fallback path must be swallowed,
	// not thrown into the cleanup goroutine.
	h := &fakeHandle{failErr: stderrors.New("close failed")}
	leakGuard(h)

	waitForCloses(t, h, 1)
}

func TestGuard_ExplicitReleaseCancelsFallback(t *testing.T) {
	h := &fakeHandle{}
	func() {
		g := Acquire(h, (*fakeHandle).close)
		if err := g.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
	}()

	for i := 0; i < 5; i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("expected exactly 1 close, got %d", h.closes.Load())
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []registry.Event
}

func (o *recordingObserver) OnGuardEvent(e registry.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) snapshot() []registry.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]registry.Event(nil), o.events...)
}

func TestGuard_RegistryTracking(t *testing.T) {
	reg := registry.New()
	obs := &recordingObserver{}
	reg.Subscribe(obs)

	h := &fakeHandle{}
	g := Acquire(h, (*fakeHandle).close, WithName("tracked"), WithRegistry(reg))

	if reg.Len() != 1 {
		t.Fatalf("expected 1 tracked guard, got %d", reg.Len())
	}
	if g.Handle() == 0 {
		t.Fatal("tracked guard should have a non-zero handle")
	}
	if e, ok := reg.Get(g.Handle()); !ok || e.Name != "tracked" {
		t.Fatalf("registry entry not found for guard handle: %+v", e)
	}

	if err := g.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected 0 tracked guards after release, got %d", reg.Len())
	}

	events := obs.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != registry.EventTracked || events[1].Type != registry.EventReleased {
		t.Fatalf("unexpected event sequence: %v, %v", events[0].Type, events[1].Type)
	}
	if events[0].Name != "tracked" {
		t.Fatalf("expected event name 'tracked', got %q", events[0].Name)
	}
}

func TestGuard_RegistryLeakEvent(t *testing.T) {
	reg := registry.New()
	obs := &recordingObserver{}
	reg.Subscribe(obs)

	h := &fakeHandle{}
	leakGuard(h, WithName("leaky"), WithRegistry(reg))

	waitForCloses(t, h, 1)

	deadline := time.Now().Add(10 * time.Second)
	for {
		var leaked bool
		for _, e := range obs.snapshot() {
			if e.Type == registry.EventLeaked && e.Name == "leaky" {
				leaked = true
			}
		}
		if leaked {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("leak event never observed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if reg.Len() != 0 {
		t.Fatalf("leaked guard still tracked, Len=%d", reg.Len())
	}
}

func TestGuard_RegistryCloseReleases(t *testing.T) {
	reg := registry.New()

	h := &fakeHandle{}
	g := Acquire(h, (*fakeHandle).close, WithName("owned-by-registry"), WithRegistry(reg))

	if err := reg.Close(); err != nil {
		t.Fatalf("registry Close failed: %v", err)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("registry Close did not release the guard: %d closes", h.closes.Load())
	}

	// The guard observed the release too.
	if !g.Released() {
		t.Fatal("guard should report released after registry Close")
	}
	if err := g.Release(); err != nil {
		t.Fatalf("explicit Release after registry Close should be a no-op, got %v", err)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("double release after registry Close: %d", h.closes.Load())
	}
}

func TestGuard_NilReleaseAction(t *testing.T) {
	g := Acquire(42, nil)
	if err := g.Release(); err != nil {
		t.Fatalf("Release with nil action failed: %v", err)
	}
	if _, err := g.Value(); !errors.IsAlreadyReleased(err) {
		t.Fatalf("expected AlreadyReleased, got %v", err)
	}
}

func TestCloser(t *testing.T) {
	h := &fakeHandle{}
	g := Closer(closerFunc(h.close), WithName("closer"))
	if err := g.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("expected 1 close, got %d", h.closes.Load())
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
