package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"aiwatch/internal/costs"
	"aiwatch/internal/jobs"
	"aiwatch/internal/providers"
	"aiwatch/internal/results"
)

var (
	// ErrUnknownType marks a well-formed frame with a type this client does
	// not handle.
	ErrUnknownType = errors.New("unknown event type")
	// ErrInvalidEnvelope marks frames that cannot be trusted for merging.
	ErrInvalidEnvelope = errors.New("invalid event envelope")
)

type envelope struct {
	Type       Type            `json:"type"`
	JobID      string          `json:"jobId"`
	ProviderID string          `json:"providerId"`
	Timestamp  Timestamp       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

type statusPayload struct {
	Status   *string `json:"status"`
	Progress *int    `json:"progress"`
	Error    *string `json:"error"`
}

type transcriptionPayload struct {
	Segments []results.Segment `json:"segments"`
}

type chaptersPayload struct {
	Chapters []results.Chapter `json:"chapters"`
}

type analyticsPayload struct {
	Analytics *results.Analytics `json:"analytics"`
}

type errorPayload struct {
	Error    string `json:"error"`
	Provider string `json:"provider"`
}

type providerPayload struct {
	Status *providers.Patch `json:"status"`
}

type costPayload struct {
	Entry *costs.Entry `json:"entry"`
}

// Decode parses one inbound frame.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	env.Type = Type(strings.TrimSpace(string(env.Type)))
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	}
	payload := env.Payload
	hasPayload := len(bytes.TrimSpace(payload)) > 0 && !bytes.Equal(bytes.TrimSpace(payload), []byte("null"))
	if !hasPayload {
		payload = data
	}
	header := Header{Timestamp: env.Timestamp.Time}

	switch env.Type {
	case TypeAuthenticated:
		return Authenticated{Header: header}, nil
	case TypePong:
		if header.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: pong without timestamp", ErrInvalidEnvelope)
		}
		return Pong{Header: header}, nil
	case TypeStatusUpdate, TypeTranscriptionComplete, TypeChaptersComplete, TypeAnalyticsUpdate,
		TypeProcessingComplete, TypeProcessingError, TypeProviderStatus, TypeCostRecorded:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if header.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: %s without timestamp", ErrInvalidEnvelope, env.Type)
	}

	switch env.Type {
	case TypeProviderStatus:
		if env.ProviderID == "" {
			return nil, fmt.Errorf("%w: provider_status without providerId", ErrInvalidEnvelope)
		}
		var p providerPayload
		if err := unmarshalPayload(payload, &p); err != nil {
			return nil, err
		}
		ev := ProviderStatus{Header: header, ProviderID: env.ProviderID}
		if p.Status != nil {
			ev.Patch = *p.Status
		}
		return ev, nil
	case TypeCostRecorded:
		// Enveloped frames carry the entry as the payload; flat frames nest
		// it under "entry".
		var entry costs.Entry
		if hasPayload {
			if err := unmarshalPayload(payload, &entry); err != nil {
				return nil, err
			}
		} else {
			var p costPayload
			if err := unmarshalPayload(payload, &p); err != nil {
				return nil, err
			}
			if p.Entry != nil {
				entry = *p.Entry
			}
		}
		if entry.ID == "" {
			return nil, fmt.Errorf("%w: cost_recorded without entry id", ErrInvalidEnvelope)
		}
		return CostRecorded{Header: header, Entry: entry}, nil
	}

	if env.JobID == "" {
		return nil, fmt.Errorf("%w: %s without jobId", ErrInvalidEnvelope, env.Type)
	}

	switch env.Type {
	case TypeStatusUpdate:
		var p statusPayload
		if err := unmarshalPayload(payload, &p); err != nil {
			return nil, err
		}
		ev := StatusUpdate{Header: header, JobID: env.JobID}
		if p.Status != nil && strings.TrimSpace(*p.Status) != "" {
			status, ok := jobs.ParseStatus(*p.Status)
			if !ok {
				return nil, fmt.Errorf("%w: status %q", ErrInvalidEnvelope, *p.Status)
			}
			ev.Patch.Status = &status
		}
		ev.Patch.Progress = p.Progress
		if p.Error != nil && *p.Error != "" {
			ev.Patch.Error = p.Error
		}
		return ev, nil
	case TypeTranscriptionComplete:
		var p transcriptionPayload
		if err := unmarshalPayload(payload, &p); err != nil {
			return nil, err
		}
		return TranscriptionComplete{Header: header, JobID: env.JobID, Segments: p.Segments}, nil
	case TypeChaptersComplete:
		var p chaptersPayload
		if err := unmarshalPayload(payload, &p); err != nil {
			return nil, err
		}
		return ChaptersComplete{Header: header, JobID: env.JobID, Chapters: p.Chapters}, nil
	case TypeAnalyticsUpdate:
		var p analyticsPayload
		if err := unmarshalPayload(payload, &p); err != nil {
			return nil, err
		}
		if p.Analytics == nil {
			return nil, fmt.Errorf("%w: analytics_update without analytics", ErrInvalidEnvelope)
		}
		return AnalyticsUpdate{Header: header, JobID: env.JobID, Analytics: *p.Analytics}, nil
	case TypeProcessingComplete:
		return ProcessingComplete{Header: header, JobID: env.JobID}, nil
	default: // TypeProcessingError
		var p errorPayload
		if err := unmarshalPayload(payload, &p); err != nil {
			return nil, err
		}
		msg := strings.TrimSpace(p.Error)
		if msg == "" {
			msg = ProcessingErrorMessage
		}
		return ProcessingError{Header: header, JobID: env.JobID, Provider: p.Provider, Message: msg}, nil
	}
}

func unmarshalPayload(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrInvalidEnvelope, err)
	}
	return nil
}
