// Package resguard provides deterministic-or-fallback lifecycle guards
// for external resources.
//
// A guard wraps one externally-owned handle (a file, socket, connection,
// buffer) and guarantees its release action runs exactly once: either on
// the explicit path, when the caller invokes Release, or on the fallback
// path, when the guard becomes unreachable without an explicit release
// and the runtime's cleanup machinery fires as a best-effort safety net.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	resguard/            Root package with the Releasable capability interface
//	├── guard/           Guard[T]: exactly-once release, scoped acquisition, fallback cleanup
//	├── registry/        Live-guard tracking with lifecycle events and observers
//	├── errors/          Structured error types for lifecycle failures
//	└── cmd/guardwatch/  CLI and TUI for watching a live registry
//
// # Quick Start
//
// Guard a resource and release it within a bounded scope:
//
//	f, err := os.Open(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = guard.With(f, func(f *os.File) error { return f.Close() },
//	    func(g *guard.Guard[*os.File]) error {
//	        return g.Do(func(f *os.File) error {
//	            _, err := io.Copy(dst, f)
//	            return err
//	        })
//	    })
//
// The release action runs on every exit path: normal return, early
// return, or panic inside the body.
//
// # Explicit vs Fallback Release
//
// Release is idempotent. Calling it twice never double-closes, and any
// use of the handle after release fails with an already-released error.
// If a guard is dropped without Release ever being called, the fallback
// path eventually runs the release action once, with no timing
// guarantee and no guarantee of running before process exit. Fallback
// cleanup is advisory only; the scoped With helper is the primary
// construct.
//
// Release errors are surfaced to the caller on the explicit path. On the
// fallback path no caller remains, so errors are logged and contained.
//
// # Composition
//
// Resource types implement the Releasable capability interface directly.
// A guard can own additional Releasable sub-resources; those are
// released in reverse acquisition order on the explicit path only,
// since the fallback path cannot guarantee teardown ordering.
package resguard
