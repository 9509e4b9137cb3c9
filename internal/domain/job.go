package domain

import (
	"encoding/json"
	"time"
)

// TaskKind names a unit of work the generation backend knows how to run.
type TaskKind string

const (
	TaskGenerateCharacters TaskKind = "generate_characters"
	TaskGenerateFactions   TaskKind = "generate_factions"
	TaskGenerateSettings   TaskKind = "generate_settings"
	TaskGenerateEvents     TaskKind = "generate_events"
	TaskGenerateRelics     TaskKind = "generate_relics"
	TaskCreateWorld        TaskKind = "create_world"
	TaskGenerateWorldImage TaskKind = "generate_world_image"
)

var knownTaskKinds = map[TaskKind]bool{
	TaskGenerateCharacters: true,
	TaskGenerateFactions:   true,
	TaskGenerateSettings:   true,
	TaskGenerateEvents:     true,
	TaskGenerateRelics:     true,
	TaskCreateWorld:        true,
	TaskGenerateWorldImage: true,
}

func (k TaskKind) Valid() bool { return knownTaskKinds[k] }

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Active reports whether the backend is still working on the job.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobProcessing
}

// JobRequest describes work to submit. The payload is encoded at submission time and
// must not be mutated by the caller afterwards.
type JobRequest struct {
	Type    TaskKind       `json:"type"`
	Payload map[string]any `json:"payload"`
}

// JobRecord is a backend-owned snapshot of a job. Callers only ever see copies.
type JobRecord struct {
	ID          string          `json:"id"`
	Type        TaskKind        `json:"type"`
	Status      JobStatus       `json:"status"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message"`
	Payload     map[string]any  `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with r.
func (r JobRecord) Clone() JobRecord {
	out := r
	if r.Result != nil {
		out.Result = append(json.RawMessage(nil), r.Result...)
	}
	if r.Payload != nil {
		out.Payload = make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			out.Payload[k] = v
		}
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// DecodeResult unmarshals the job result into v.
func (r JobRecord) DecodeResult(v any) error {
	if len(r.Result) == 0 {
		return ErrEmptyResult
	}
	return json.Unmarshal(r.Result, v)
}
