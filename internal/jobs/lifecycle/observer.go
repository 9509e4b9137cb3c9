package lifecycle

import (
	"time"

	"github.com/yungbote/loresmith/internal/domain"
)

// Observer is told about submissions, snapshots and outcomes. Calls happen on the
// controller's goroutines and must not block. JobFinished fires once per handle, with
// StateSuperseded for a handle dropped by a newer Submit or by Close.
type Observer interface {
	JobSubmitted(kind domain.TaskKind, err error)
	JobUpdated(rec domain.JobRecord)
	JobFinished(jobID string, kind domain.TaskKind, state State, elapsed time.Duration)
}

// Observers fans out to every non-nil member.
type Observers []Observer

func (o Observers) JobSubmitted(kind domain.TaskKind, err error) {
	for _, ob := range o {
		if ob != nil {
			ob.JobSubmitted(kind, err)
		}
	}
}

func (o Observers) JobUpdated(rec domain.JobRecord) {
	for _, ob := range o {
		if ob != nil {
			ob.JobUpdated(rec)
		}
	}
}

func (o Observers) JobFinished(jobID string, kind domain.TaskKind, state State, elapsed time.Duration) {
	for _, ob := range o {
		if ob != nil {
			ob.JobFinished(jobID, kind, state, elapsed)
		}
	}
}

type nopObserver struct{}

func (nopObserver) JobSubmitted(domain.TaskKind, error) {}
func (nopObserver) JobUpdated(domain.JobRecord) {}
func (nopObserver) JobFinished(string, domain.TaskKind, State, time.Duration) {}
