package optimistic

import (
	"context"
	"errors"
	"testing"
)

type toggle struct {
	on      bool
	applied bool
}

func TestRunReconcilesOnSuccess(t *testing.T) {
	st := &toggle{}
	var seenDuringCommit bool

	res, err := Run(context.Background(), Mutation[toggle, bool]{
		Snapshot: func() toggle { return *st },
		Apply:    func() { st.on = true },
		Commit: func(context.Context) (bool, error) {
			seenDuringCommit = st.on
			return true, nil
		},
		Reconcile: func(applied bool) { st.applied = applied },
		Rollback:  func(prev toggle) { *st = prev },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !seenDuringCommit {
		t.Fatalf("tentative state must be visible before commit")
	}
	if !res || !st.on || !st.applied {
		t.Fatalf("state after success: got=%+v res=%v", *st, res)
	}
}

func TestRunRollsBackOnFailure(t *testing.T) {
	st := &toggle{on: false}
	boom := errors.New("store unavailable")
	reconciled := false

	_, err := Run(context.Background(), Mutation[toggle, struct{}]{
		Snapshot:  func() toggle { return *st },
		Apply:     func() { st.on = true },
		Commit:    func(context.Context) (struct{}, error) { return struct{}{}, boom },
		Reconcile: func(struct{}) { reconciled = true },
		Rollback:  func(prev toggle) { *st = prev },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want commit error got=%v", err)
	}
	if st.on {
		t.Fatalf("tentative change must be reverted")
	}
	if reconciled {
		t.Fatalf("reconcile must not run on failure")
	}
}

func TestRunRequiresCoreFuncs(t *testing.T) {
	if _, err := Run(context.Background(), Mutation[int, int]{}); err == nil {
		t.Fatalf("want error for empty mutation")
	}
}
