package events

import (
	"time"

	"aiwatch/internal/costs"
	"aiwatch/internal/jobs"
	"aiwatch/internal/providers"
	"aiwatch/internal/results"
)

// Type is the wire discriminator of a message.
type Type string

const (
	TypeStatusUpdate          Type = "status_update"
	TypeTranscriptionComplete Type = "transcription_complete"
	TypeChaptersComplete      Type = "chapters_complete"
	TypeAnalyticsUpdate       Type = "analytics_update"
	TypeProcessingComplete    Type = "processing_complete"
	TypeProcessingError       Type = "processing_error"
	TypeProviderStatus        Type = "provider_status"
	TypeCostRecorded          Type = "cost_recorded"
	TypePong                  Type = "pong"
	TypeAuthenticated         Type = "authenticated"

	TypeAuthenticate Type = "authenticate"
	TypePing         Type = "ping"
)

// Event is implemented by every inbound message type.
type Event interface {
	Kind() Type
	// At is the logical time the backend stamped on the event.
	At() time.Time
}

// Header carries the envelope fields shared by all events.
type Header struct {
	Timestamp time.Time
}

func (h Header) At() time.Time { return h.Timestamp }

type StatusUpdate struct {
	Header
	JobID string
	Patch jobs.Patch
}

type TranscriptionComplete struct {
	Header
	JobID    string
	Segments []results.Segment
}

type ChaptersComplete struct {
	Header
	JobID    string
	Chapters []results.Chapter
}

type AnalyticsUpdate struct {
	Header
	JobID     string
	Analytics results.Analytics
}

type ProcessingComplete struct {
	Header
	JobID string
}

type ProcessingError struct {
	Header
	JobID    string
	Provider string
	Message  string
}

type ProviderStatus struct {
	Header
	ProviderID string
	Patch      providers.Patch
}

type CostRecorded struct {
	Header
	Entry costs.Entry
}

// Pong answers a ping. Timestamp echoes the ping's timestamp.
type Pong struct {
	Header
}

// Authenticated acknowledges the authenticate message.
type Authenticated struct {
	Header
}

func (StatusUpdate) Kind() Type          { return TypeStatusUpdate }
func (TranscriptionComplete) Kind() Type { return TypeTranscriptionComplete }
func (ChaptersComplete) Kind() Type      { return TypeChaptersComplete }
func (AnalyticsUpdate) Kind() Type       { return TypeAnalyticsUpdate }
func (ProcessingComplete) Kind() Type    { return TypeProcessingComplete }
func (ProcessingError) Kind() Type       { return TypeProcessingError }
func (ProviderStatus) Kind() Type        { return TypeProviderStatus }
func (CostRecorded) Kind() Type          { return TypeCostRecorded }
func (Pong) Kind() Type                  { return TypePong }
func (Authenticated) Kind() Type         { return TypeAuthenticated }

// ProcessingErrorMessage is the text used when the backend omits one.
const ProcessingErrorMessage = "An unknown error occurred"
