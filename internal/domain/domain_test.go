package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStageNextFollowsFixedOrder(t *testing.T) {
	cases := map[Stage]Stage{
		StageCharacters: StageFactions,
		StageFactions:   StageSettings,
		StageSettings:   StageEvents,
		StageEvents:     StageRelics,
		StageRelics:     StageFinalize,
		StageFinalize:   "",
		Stage("bogus"):  "",
	}
	for in, want := range cases {
		if got := in.Next(); got != want {
			t.Fatalf("%s.Next(): want=%q got=%q", in, want, got)
		}
	}
}

func TestStageKeysAndKinds(t *testing.T) {
	for _, st := range StageOrder {
		if st.SelectionKey() == "" {
			t.Fatalf("%s: missing selection key", st)
		}
		if !st.TaskKind().Valid() {
			t.Fatalf("%s: invalid task kind %q", st, st.TaskKind())
		}
	}
	if StageFinalize.Valid() {
		t.Fatalf("finalize must not be a selectable stage")
	}
	if StageFinalize.TaskKind() != TaskCreateWorld {
		t.Fatalf("finalize kind: want=%s got=%s", TaskCreateWorld, StageFinalize.TaskKind())
	}
}

func TestJobRecordCloneIsIndependent(t *testing.T) {
	rec := JobRecord{ID: "job-1", Result: json.RawMessage(`[1]`), Payload: map[string]any{"theme": "fantasy"}}
	cp := rec.Clone()
	cp.Result[0] = '{'
	cp.Payload["theme"] = "noir"
	if string(rec.Result) != "[1]" {
		t.Fatalf("result aliased: got=%s", rec.Result)
	}
	if rec.Payload["theme"] != "fantasy" {
		t.Fatalf("payload aliased: got=%v", rec.Payload["theme"])
	}
}

func TestDecodeResultEmpty(t *testing.T) {
	var out []Artifact
	if err := (JobRecord{}).DecodeResult(&out); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("empty result: want ErrEmptyResult got=%v", err)
	}
}

func TestStatusPredicates(t *testing.T) {
	if !JobPending.Active() || !JobProcessing.Active() || JobCompleted.Active() {
		t.Fatalf("Active predicate mismatch")
	}
	if !JobCompleted.Terminal() || !JobFailed.Terminal() || JobPending.Terminal() {
		t.Fatalf("Terminal predicate mismatch")
	}
}
