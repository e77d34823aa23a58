package models

import (
	"time"
)

// Response is the standard API envelope shared by every endpoint.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message so
// callers can branch on "doesn't exist" vs "operation failed".
type APIError struct {
	// Code is a stable machine-readable error code
	Code string `json:"code" example:"NOT_FOUND"`

	// Message is a human-readable description of the error
	Message string `json:"message" example:"unknown container \"redis\""`

	// Details provides optional additional error context
	Details string `json:"details,omitempty"`
}

// Meta holds common response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Stable API error codes.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeRuntimeUnavailable = "RUNTIME_UNAVAILABLE"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// OperationAccepted is returned by every submission endpoint; the caller
// polls the operation id for progress.
type OperationAccepted struct {
	OperationID string        `json:"operation_id"`
	Kind        OperationKind `json:"kind"`
	Targets     []string      `json:"targets"`
}

// HealthStatus reports daemon reachability and server build information.
type HealthStatus struct {
	Status        string `json:"status"`
	RuntimeOK     bool   `json:"runtime_ok"`
	RuntimeDetail string `json:"runtime_detail,omitempty"`
	Version       string `json:"version"`
}

// ContainerDetail pairs a container's configured spec with its live state.
type ContainerDetail struct {
	Spec   ContainerSpec   `json:"spec"`
	Status ContainerStatus `json:"status"`
}
