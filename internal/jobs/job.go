package jobs

import (
	"encoding/json"
	"time"
)

// Type enumerates supported generation job categories.
type Type string

const (
	TypeVideo Type = "video"
	TypeImage Type = "image"
)

// Valid reports whether the type is one the queue can dispatch.
func (t Type) Valid() bool {
	return t == TypeVideo || t == TypeImage
}

// MediaPrefix is the content-type family a successful webhook response must
// declare for this job type.
func (t Type) MediaPrefix() string {
	if t == TypeVideo {
		return "video/"
	}
	return "image/"
}

// Status enumerates job lifecycle states. Transitions are monotonic:
// pending moves to completed or failed exactly once and never back.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one background webhook job. Records are owned by the queue once
// submitted and are never deleted by it; the store is advisory, not a ledger.
type Job struct {
	ID     string `gorm:"primaryKey;size:64" json:"id"`
	Type   Type   `gorm:"type:varchar(16);not null" json:"type"`
	Status Status `gorm:"type:varchar(16);index;not null" json:"status"`

	WebhookURL string          `gorm:"not null" json:"webhook_url"`
	Payload    json.RawMessage `gorm:"type:text" json:"payload,omitempty"`
	FormFields json.RawMessage `gorm:"type:text" json:"form_fields,omitempty"`
	Headers    json.RawMessage `gorm:"type:text" json:"headers,omitempty"`

	// Image attachment transported as raw bytes so multipart parts can be
	// reconstructed on dispatch, including after a restart.
	ImageName string `json:"image_name,omitempty"`
	ImageMIME string `json:"image_mime,omitempty"`
	ImageData []byte `gorm:"type:blob" json:"-"`

	ResultKey  string `json:"result_key,omitempty"`
	ResultMIME string `json:"result_mime,omitempty"`
	Error      string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// FieldMap decodes the stored multipart form fields.
func (j *Job) FieldMap() map[string]string {
	return decodeStringMap(j.FormFields)
}

// HeaderMap decodes the stored outbound request headers.
func (j *Job) HeaderMap() map[string]string {
	return decodeStringMap(j.Headers)
}

func decodeStringMap(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
