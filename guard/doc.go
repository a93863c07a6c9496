// Package guard implements exactly-once lifecycle guards for external
// resources.
//
// A Guard takes ownership of one handle together with its release
// action:
//
//	g := guard.Acquire(conn, func(c net.Conn) error { return c.Close() },
//	    guard.WithName("upstream-conn"))
//
//	err := g.Do(func(c net.Conn) error {
//	    _, err := c.Write(payload)
//	    return err
//	})
//
//	if err := g.Release(); err != nil {
//	    log.Println(err)
//	}
//
// Release is idempotent: the release action runs at most once across
// any sequence of calls, concurrent or not. Using the handle after
// release fails with errors.AlreadyReleased.
//
// # Scoped Acquisition
//
// With acquires a guard, runs the body, and releases on every exit
// path, including panic:
//
//	err := guard.With(f, closeFile, func(g *guard.Guard[*os.File]) error {
//	    return process(g)
//	})
//
// # Fallback Release
//
// If a guard becomes unreachable without Release having been called,
// a runtime cleanup eventually runs the release action once. This path
// is a best-effort safety net: timing is not guaranteed, it may not run
// before process exit, and release errors are logged rather than
// surfaced because no caller remains. Owned sub-resources attached with
// WithOwned are skipped on the fallback path, since their teardown
// order cannot be guaranteed there.
package guard
