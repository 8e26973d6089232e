package models

import (
	"strings"
	"time"
)

// TransformationRequest is what a user submits: a social-media handle.
type TransformationRequest struct {
	Handle string `json:"handle"`
}

// NormalizeHandle trims whitespace and a single leading "@".
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// PredictionStatus is the provider-reported state of an asynchronous job.
type PredictionStatus string

const (
	PredictionStarting   PredictionStatus = "starting"
	PredictionInQueue    PredictionStatus = "in_queue"
	PredictionProcessing PredictionStatus = "processing"
	PredictionCompleted  PredictionStatus = "completed"
	PredictionFailed     PredictionStatus = "failed"
	PredictionCanceled   PredictionStatus = "canceled"
)

// IsTerminal reports whether no further status change is expected.
func (s PredictionStatus) IsTerminal() bool {
	switch s {
	case PredictionCompleted, PredictionFailed, PredictionCanceled:
		return true
	}
	return false
}

// PredictionError is the provider's error object on a failed job.
type PredictionError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// PredictionJob is one asynchronous transformation as reported by the provider.
type PredictionJob struct {
	ID     string           `json:"id"`
	Status PredictionStatus `json:"status"`
	Output []string         `json:"output,omitempty"`
	Error  *PredictionError `json:"error,omitempty"`
}

// FirstOutput returns the first output URL, or "".
func (j *PredictionJob) FirstOutput() string {
	for _, o := range j.Output {
		if o != "" {
			return o
		}
	}
	return ""
}

// TransformationRecord is one row of transformation history.
type TransformationRecord struct {
	FlowID           string    `json:"flowId" db:"flow_id"`
	Handle           string    `json:"handle" db:"handle"`
	ClientIP         string    `json:"clientIp" db:"client_ip"`
	Status           string    `json:"status" db:"status"`
	ProfileImage     string    `json:"profileImage,omitempty" db:"profile_image"`
	TransformedImage string    `json:"transformedImage,omitempty" db:"transformed_image"`
	ErrorCode        string    `json:"errorCode,omitempty" db:"error_code"`
	ErrorMessage     string    `json:"errorMessage,omitempty" db:"error_message"`
	DurationMs       int64     `json:"durationMs" db:"duration_ms"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}

// DefaultClientIP identifies callers whose address cannot be determined.
const DefaultClientIP = "127.0.0.1"
