// Package models defines the shared data types for devcage: operations,
// script results, container and group specifications, and the API
// request/response structures.
package models

import (
	"time"
)

// OperationKind identifies the kind of lifecycle job an operation performs.
type OperationKind string

const (
	// OperationStart starts a single container
	OperationStart OperationKind = "start"
	// OperationStop stops a single container
	OperationStop OperationKind = "stop"
	// OperationRestart restarts a single container
	OperationRestart OperationKind = "restart"
	// OperationCleanup stops and removes a single container with its image and volumes
	OperationCleanup OperationKind = "cleanup"
	// OperationGroupStart starts every member of a group in declared order
	OperationGroupStart OperationKind = "group_start"
	// OperationGroupStop stops every member of a group
	OperationGroupStop OperationKind = "group_stop"
	// OperationStopAll stops all managed containers
	OperationStopAll OperationKind = "stop_all"
	// OperationRestartAll restarts all managed containers
	OperationRestartAll OperationKind = "restart_all"
	// OperationCleanupAll removes all managed containers with their images and volumes
	OperationCleanupAll OperationKind = "cleanup_all"
)

// ValidOperationKinds lists every recognized operation kind.
var ValidOperationKinds = []OperationKind{
	OperationStart,
	OperationStop,
	OperationRestart,
	OperationCleanup,
	OperationGroupStart,
	OperationGroupStop,
	OperationStopAll,
	OperationRestartAll,
	OperationCleanupAll,
}

// IsValid reports whether the kind is one of the recognized operation kinds.
func (k OperationKind) IsValid() bool {
	for _, v := range ValidOperationKinds {
		if k == v {
			return true
		}
	}
	return false
}

// OperationStatus represents the lifecycle state of an operation.
type OperationStatus string

const (
	// OperationStatusPending indicates the operation was accepted but its worker has not started
	OperationStatusPending OperationStatus = "pending"
	// OperationStatusRunning indicates the worker is executing targets
	OperationStatusRunning OperationStatus = "running"
	// OperationStatusCompleted indicates every target has settled
	OperationStatusCompleted OperationStatus = "completed"
	// OperationStatusError indicates the operation was aborted as a whole
	OperationStatusError OperationStatus = "error"
	// OperationStatusCancelled indicates the operation was cancelled before all targets settled
	OperationStatusCancelled OperationStatus = "cancelled"
)

// Terminal reports whether the status is final and immutable.
func (s OperationStatus) Terminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusError || s == OperationStatusCancelled
}

// Outcome is the settled result for one container within an operation.
type Outcome string

const (
	// OutcomeStarted indicates the container was created or started
	OutcomeStarted Outcome = "started"
	// OutcomeAlreadyRunning indicates a start found the container already running
	OutcomeAlreadyRunning Outcome = "already_running"
	// OutcomeStopped indicates the container was stopped
	OutcomeStopped Outcome = "stopped"
	// OutcomeNotRunning indicates a stop found no running container
	OutcomeNotRunning Outcome = "not_running"
	// OutcomeRestarted indicates the container was stopped and started again
	OutcomeRestarted Outcome = "restarted"
	// OutcomeRemoved indicates the container and its resources were removed
	OutcomeRemoved Outcome = "removed"
	// OutcomeFailed indicates the transition failed
	OutcomeFailed Outcome = "failed"
)

// OperationCounters tallies settled outcomes. Once the operation completes
// the counters sum to the size of the target set.
type OperationCounters struct {
	Started        int `json:"started"`
	AlreadyRunning int `json:"already_running"`
	Stopped        int `json:"stopped"`
	NotRunning     int `json:"not_running"`
	Restarted      int `json:"restarted"`
	Removed        int `json:"removed"`
	Failed         int `json:"failed"`
}

// Add increments the counter matching the outcome.
func (c *OperationCounters) Add(o Outcome) {
	switch o {
	case OutcomeStarted:
		c.Started++
	case OutcomeAlreadyRunning:
		c.AlreadyRunning++
	case OutcomeStopped:
		c.Stopped++
	case OutcomeNotRunning:
		c.NotRunning++
	case OutcomeRestarted:
		c.Restarted++
	case OutcomeRemoved:
		c.Removed++
	case OutcomeFailed:
		c.Failed++
	}
}

// Sum returns the total number of settled targets.
func (c OperationCounters) Sum() int {
	return c.Started + c.AlreadyRunning + c.Stopped + c.NotRunning +
		c.Restarted + c.Removed + c.Failed
}

// TargetResult is the per-container outcome held inside an operation.
type TargetResult struct {
	// Name is the container name the result belongs to
	Name string `json:"name"`

	// Outcome is the settled outcome for this container
	Outcome Outcome `json:"outcome"`

	// Detail carries a human-readable elaboration, preserved verbatim for failures
	Detail string `json:"detail,omitempty"`

	// ScriptResults records every script attempt executed for this container
	ScriptResults []ScriptResult `json:"script_results,omitempty"`
}

// OperationSnapshot is an immutable copy of an operation's state, safe to
// hand to any number of concurrent pollers.
type OperationSnapshot struct {
	ID          string                  `json:"id"`
	Kind        OperationKind           `json:"kind"`
	Status      OperationStatus         `json:"status"`
	Targets     []string                `json:"targets"`
	Counters    OperationCounters       `json:"counters"`
	Errors      []string                `json:"errors,omitempty"`
	Results     map[string]TargetResult `json:"results,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// Done reports whether the snapshot reflects a terminal operation.
func (s OperationSnapshot) Done() bool {
	return s.Status.Terminal()
}
