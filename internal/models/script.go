package models

import (
	"time"
)

// ScriptPhase identifies the lifecycle point at which a script runs.
type ScriptPhase string

const (
	// PhasePostStart runs after the container is observably running
	PhasePostStart ScriptPhase = "post_start"
	// PhasePreStop runs against the live container before it is stopped
	PhasePreStop ScriptPhase = "pre_stop"
)

// ScriptOrigin distinguishes convention-located scripts from ones declared
// in the configuration.
type ScriptOrigin string

const (
	// OriginDefault is a convention-located script shipped with the container definition
	OriginDefault ScriptOrigin = "default"
	// OriginCustom is a script declared in the container configuration
	OriginCustom ScriptOrigin = "custom"
)

// ScriptSpec is one resolved lifecycle script, ready to execute. The
// configuration collaborator resolves inline vs. file-backed sources into
// Command; the runner consumes the spec without branching on origin.
type ScriptSpec struct {
	// Phase the script belongs to
	Phase ScriptPhase `json:"phase"`

	// Origin of the script (default before custom within a phase)
	Origin ScriptOrigin `json:"origin"`

	// Command is the shell command line to execute inside the container
	Command string `json:"command,omitempty"`

	// Args, when set, is executed directly without a shell; otherwise
	// Command runs under Shell -c
	Args []string `json:"args,omitempty"`

	// Shell is the interpreter used to run Command (defaults to /bin/sh)
	Shell string `json:"shell,omitempty"`
}

// ExecArgv returns the argument vector the runtime executes for the script.
func (s ScriptSpec) ExecArgv() []string {
	if len(s.Args) > 0 {
		return s.Args
	}
	shell := s.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	return []string{shell, "-c", s.Command}
}

// ScriptResult records one execution attempt of one lifecycle script.
type ScriptResult struct {
	// Phase the attempt ran in
	Phase ScriptPhase `json:"phase"`

	// Origin of the script that was attempted
	Origin ScriptOrigin `json:"origin"`

	// Attempt is the 1-based attempt counter, bounded by max_attempts
	Attempt int `json:"attempt"`

	// ExitCode of the script process; -1 when the attempt never produced one
	ExitCode int `json:"exit_code"`

	// Duration of the attempt
	Duration time.Duration `json:"duration"`

	// Output holds captured stdout and stderr lines in arrival order,
	// stderr lines carry a "stderr| " prefix
	Output []string `json:"output,omitempty"`

	// Truncated indicates Output was capped at max_output_lines
	Truncated bool `json:"truncated,omitempty"`

	// TimedOut indicates the attempt exceeded its per-attempt timeout
	TimedOut bool `json:"timed_out,omitempty"`

	// Error carries the attempt failure message, empty on success
	Error string `json:"error,omitempty"`
}

// Success reports whether the attempt completed with a zero exit code.
func (r ScriptResult) Success() bool {
	return !r.TimedOut && r.Error == "" && r.ExitCode == 0
}
