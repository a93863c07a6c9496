// Package registry tracks live resource guards.
//
// A Registry maps integer handles to tracked Releasable resources and
// notifies observers of lifecycle events:
//
//	reg := registry.New()
//	reg.Subscribe(obs)
//
//	h, err := reg.Track("scratch-file", res)
//
//	// later, one of:
//	reg.Untrack(h)    // released on the explicit path
//	reg.MarkLeaked(h) // released by the fallback path
//
// Handle 0 is reserved and always invalid. Handles of untracked entries
// are reused.
//
// Closing a registry releases every resource still tracked, in reverse
// tracking order, and rejects further Track calls. Observer callbacks
// may arrive from the runtime's cleanup goroutine when a guard leaks;
// observers must be safe for concurrent use.
package registry
