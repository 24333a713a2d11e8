// Package jobs tracks long-running server-side jobs (transcriptions and report
// generations) by polling their status and mirroring their state locally.
package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind selects the status and result endpoints used for a job.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindReport        Kind = "report"
)

// Kinds lists every job kind in display order.
var Kinds = []Kind{KindTranscription, KindReport}

// Collection returns the fixed mirror key for the kind.
func (k Kind) Collection() string {
	switch k {
	case KindTranscription:
		return "transcripts"
	case KindReport:
		return "reports"
	default:
		return string(k)
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindTranscription || k == KindReport
}

// Status is the lifecycle state of a tracked job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// ErrUnknownStatus is returned by ParseStatus for values outside the enumeration.
var ErrUnknownStatus = errors.New("unknown job status")

// statusAliases maps the intermediate stage names the service reports while a
// job is running onto the closed status set.
var statusAliases = map[string]Status{
	"pending":             StatusPending,
	"waiting":             StatusPending,
	"initializing":        StatusPending,
	"queued":              StatusPending,
	"processing":          StatusProcessing,
	"uploading":           StatusProcessing,
	"transcribing":        StatusProcessing,
	"processing_response": StatusProcessing,
	"completed":           StatusCompleted,
	"error":               StatusError,
	"failed":              StatusError,
}

// ParseStatus converts a wire status into a Status.
func ParseStatus(s string) (Status, error) {
	if st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// InFlight reports whether the job still needs polling.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusProcessing
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	return s.InFlight() || s.Terminal()
}

// Record is the locally mirrored state of one server-side job.
type Record struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Title  string `json:"title"`
	Status Status `json:"status"`

	// Progress is 0-100 and only meaningful while the job is in flight.
	Progress int `json:"progress"`

	// SourceID is the audio file a transcription was started from, or the
	// transcript a report was generated from.
	SourceID string `json:"sourceId,omitempty"`
	Message  string `json:"message,omitempty"`

	ResultText    string `json:"resultText,omitempty"`
	ResultBlobRef string `json:"resultBlobRef,omitempty"`

	// NotifiedCompletion guards the one-time terminal notification.
	NotifiedCompletion bool `json:"notifiedCompletion"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasResult reports whether a result payload is attached.
func (r Record) HasResult() bool {
	return r.ResultText != "" || r.ResultBlobRef != ""
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
