// Package optimistic applies a tentative local change before the authoritative write and
// reverts it if the write fails.
package optimistic

import (
	"context"
	"errors"
)

// Mutation describes one optimistic change. Snapshot captures the state to restore,
// Apply makes the tentative change visible, Commit performs the real write, Reconcile
// replaces the tentative state with what Commit returned and Rollback restores the
// snapshot. Reconcile and Rollback are optional.
type Mutation[S any, R any] struct {
	Snapshot  func() S
	Apply     func()
	Commit    func(ctx context.Context) (R, error)
	Reconcile func(R)
	Rollback  func(S)
}

// Run executes m. On a Commit error the snapshot is restored and the error returned.
func Run[S any, R any](ctx context.Context, m Mutation[S, R]) (R, error) {
	var zero R
	if m.Snapshot == nil || m.Apply == nil || m.Commit == nil {
		return zero, errors.New("optimistic: Snapshot, Apply and Commit are required")
	}
	prev := m.Snapshot()
	m.Apply()

	res, err := m.Commit(ctx)
	if err != nil {
		if m.Rollback != nil {
			m.Rollback(prev)
		}
		return zero, err
	}
	if m.Reconcile != nil {
		m.Reconcile(res)
	}
	return res, nil
}
