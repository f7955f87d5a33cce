package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a processing job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// ParseStatus normalizes a status string. The second return is false for
// values outside the lifecycle.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return status, true
	}
	return "", false
}

// IsTerminal reports whether the status ends the lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// Options mirrors the processing options a job was submitted with.
type Options struct {
	Transcription      bool   `json:"transcription" yaml:"transcription"`
	Sentiment          bool   `json:"sentiment" yaml:"sentiment"`
	Chapters           bool   `json:"chapters" yaml:"chapters"`
	SpeakerDiarization bool   `json:"speakerDiarization" yaml:"speaker_diarization"`
	Keywords           bool   `json:"keywords" yaml:"keywords"`
	Entities           bool   `json:"entities" yaml:"entities"`
	Analytics          bool   `json:"analytics" yaml:"analytics"`
	PreferredProvider  string `json:"preferredProvider,omitempty" yaml:"preferred_provider,omitempty"`
	Language           string `json:"language,omitempty" yaml:"language,omitempty"`
	WebhookURL         string `json:"webhookUrl,omitempty" yaml:"webhook_url,omitempty"`
}

// Job is one asynchronous AI processing job.
type Job struct {
	ID          string     `json:"id" yaml:"id"`
	OwnerID     string     `json:"user_id" yaml:"owner_id"`
	ProjectID   string     `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	VideoPath   string     `json:"video_path" yaml:"video_path"`
	Options     Options    `json:"options" yaml:"options"`
	Status      Status     `json:"status" yaml:"status"`
	Progress    int        `json:"progress" yaml:"progress"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Patch is a partial update carried by a status event. Nil fields are left
// unchanged.
type Patch struct {
	Status   *Status
	Progress *int
	Error    *string
}

// Change describes the effect of a merge.
type Change struct {
	Job      Job
	Previous Job
	Created  bool
	// Modified is false when the merge re-applied identical values.
	Modified bool
}

// StatusChanged reports whether the merge moved the job to a new status.
func (c Change) StatusChanged() bool {
	return c.Created || c.Previous.Status != c.Job.Status
}

// EnteredFailed reports whether the merge moved the job into failed.
func (c Change) EnteredFailed() bool {
	return c.Job.Status == StatusFailed && (c.Created || c.Previous.Status != StatusFailed)
}

func (j Job) clone() Job {
	if j.CompletedAt != nil {
		ts := *j.CompletedAt
		j.CompletedAt = &ts
	}
	return j
}

func clampProgress(value int) int {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	}
	return value
}
