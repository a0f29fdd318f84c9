package netif

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
)

// ErrKeepAddress is returned when the requested binding would reuse the
// preserved configuration address.
var ErrKeepAddress = errors.New("address is reserved for configuration")

// addrOps is the per-interface binding surface SetAddr is built on.
type addrOps interface {
	list() ([]netip.Prefix, error)
	add(p netip.Prefix) error
	del(p netip.Prefix) error
}

// replaceAddr binds want and removes every other IPv4 binding except keep.
// The new binding is added before anything is removed. If a removal fails,
// the removed bindings are put back and a freshly added want is withdrawn.
func replaceAddr(ops addrOps, keep netip.Addr, want netip.Prefix) error {
	if want.Addr() == keep {
		return fmt.Errorf("%w: %s", ErrKeepAddress, want.Addr())
	}
	current, err := ops.list()
	if err != nil {
		return err
	}

	present := false
	var stale, kept []netip.Prefix
	for _, p := range current {
		switch {
		case p.Addr() == keep:
			kept = append(kept, p)
		case p == want:
			present = true
		default:
			stale = append(stale, p)
		}
	}

	if !present {
		if err := ops.add(want); err != nil {
			return fmt.Errorf("add %s: %w", want, err)
		}
	}
	for i, p := range stale {
		if err := ops.del(p); err != nil {
			err = fmt.Errorf("delete %s: %w", p, err)
			return errors.Join(err, undoReplace(ops, stale[:i], want, !present))
		}
	}
	if len(stale) == 0 {
		return nil
	}

	// Deleting a primary address flushes the secondaries of its subnet
	// unless promote_secondaries is set.
	after, err := ops.list()
	if err != nil {
		return err
	}
	for _, p := range append(kept, want) {
		if slices.Contains(after, p) {
			continue
		}
		if err := ops.add(p); err != nil {
			return fmt.Errorf("re-add %s: %w", p, err)
		}
	}
	return nil
}

func undoReplace(ops addrOps, removed []netip.Prefix, want netip.Prefix, added bool) error {
	var errs []error
	for _, p := range removed {
		if err := ops.add(p); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", p, err))
		}
	}
	if added {
		if err := ops.del(want); err != nil {
			errs = append(errs, fmt.Errorf("withdraw %s: %w", want, err))
		}
	}
	return errors.Join(errs...)
}
