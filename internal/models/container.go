package models

import (
	"time"
)

// ManagedLabel marks containers owned by devcage; bulk operations resolve
// their target set by this label.
const ManagedLabel = "io.devcage.managed"

// GroupLabel records which group, if any, a container was declared under.
const GroupLabel = "io.devcage.group"

// ContainerSpec is a container definition resolved by the configuration
// collaborator: everything the runtime adapter needs to create and start it,
// plus the ordered lifecycle scripts for each phase.
type ContainerSpec struct {
	// Name is the container name, unique within the configuration
	Name string `json:"name" mapstructure:"name"`

	// Image is the container image reference (validated at load time)
	Image string `json:"image" mapstructure:"image"`

	// Ports maps host ports to container ports, "8080:80/tcp" style
	Ports []string `json:"ports,omitempty" mapstructure:"ports"`

	// Env holds KEY=VALUE environment entries
	Env []string `json:"env,omitempty" mapstructure:"env"`

	// Shell is the interpreter lifecycle scripts run under (default /bin/sh)
	Shell string `json:"shell,omitempty" mapstructure:"shell"`

	// Shared marks the container's named volumes as shared with other
	// containers; cleanup leaves them in place
	Shared bool `json:"shared,omitempty" mapstructure:"shared"`

	// Group is the group the container was declared under, if any
	Group string `json:"group,omitempty" mapstructure:"-"`

	// Scripts holds the resolved lifecycle scripts per phase, default before
	// custom within each phase
	Scripts map[ScriptPhase][]ScriptSpec `json:"scripts,omitempty" mapstructure:"-"`
}

// GroupSpec is a named, ordered list of container names managed as one unit.
// Order is advisory for sequential group-start: dependent services first.
type GroupSpec struct {
	Name        string   `json:"name" mapstructure:"name"`
	Description string   `json:"description,omitempty" mapstructure:"description"`
	Members     []string `json:"members" mapstructure:"members"`
}

// ContainerRunState is the observed runtime state of a container.
type ContainerRunState string

const (
	// RunStateRunning indicates the container process is running
	RunStateRunning ContainerRunState = "running"
	// RunStateExited indicates the container exists but is not running
	RunStateExited ContainerRunState = "exited"
	// RunStateAbsent indicates no container with the name exists
	RunStateAbsent ContainerRunState = "absent"
)

// ContainerStatus pairs a container's configuration identity with its live
// runtime state, as reported by the runtime adapter.
type ContainerStatus struct {
	Name        string            `json:"name"`
	ContainerID string            `json:"container_id,omitempty"`
	State       ContainerRunState `json:"state"`
	Image       string            `json:"image,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	ExitCode    int               `json:"exit_code,omitempty"`
	Detail      string            `json:"detail,omitempty"`
}

// GroupStatus is the live aggregate of a group's members, independent of
// any in-flight operation.
type GroupStatus struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Members     []ContainerStatus `json:"members"`
	Running     int               `json:"running"`
	Exited      int               `json:"exited"`
	Absent      int               `json:"absent"`
}
