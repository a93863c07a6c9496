package resguard

import "errors"

// Releasable is implemented by resources that own external state which
// must be released exactly once. Implementations are expected to make
// Release idempotent: a second call is a no-op returning nil.
type Releasable interface {
	Release() error
}

// ReleaseFunc adapts a plain function to the Releasable interface.
type ReleaseFunc func() error

// Release calls f.
func (f ReleaseFunc) Release() error {
	return f()
}

// ReleaseAll releases rs in reverse order and joins any errors.
// Reverse order mirrors acquisition: the resource acquired last is
// released first. Nil entries are skipped.
func ReleaseAll(rs ...Releasable) error {
	var errs []error
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == nil {
			continue
		}
		if err := rs[i].Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
