package resource

import (
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
)

// CommandType enumerates the supervisor and host-lifecycle commands a host
// agent may receive.
type CommandType string

const (
	CommandCreateNode  CommandType = "CreateNode"
	CommandStartNode   CommandType = "StartNode"
	CommandStopNode    CommandType = "StopNode"
	CommandRestartNode CommandType = "RestartNode"
	CommandUpgradeNode CommandType = "UpgradeNode"
	CommandDeleteNode  CommandType = "DeleteNode"
	CommandStartHost   CommandType = "StartHost"
	CommandStopHost    CommandType = "StopHost"
	CommandRestartHost CommandType = "RestartHost"
)

// IsNodeCommand reports whether t targets a specific node (and therefore
// must carry a NodeID) as opposed to a host-only command.
func (t CommandType) IsNodeCommand() bool {
	switch t {
	case CommandCreateNode, CommandStartNode, CommandStopNode, CommandRestartNode,
		CommandUpgradeNode, CommandDeleteNode:
		return true
	default:
		return false
	}
}

// Command is a single unit of work enqueued onto a host's FIFO queue.
// Lifecycle: pending (acked_at == nil) -> sent -> acked -> succeeded|failed,
// per the GLOSSARY.
type Command struct {
	ID               id.CommandID
	HostID           id.HostID
	NodeID           *id.NodeID
	CmdType          CommandType
	ExitCode         *int
	ExitMessage      *string
	RetryHintSeconds *int
	AckedAt          *time.Time
	CreatedAt        time.Time
	Seq              int64
}

// Pending reports whether the command has not yet been acknowledged.
func (c Command) Pending() bool {
	return c.AckedAt == nil
}

// Succeeded reports whether the command's exit code denotes success.
func (c Command) Succeeded() bool {
	return c.ExitCode != nil && *c.ExitCode == 0
}

// Failed reports whether the command's exit code denotes failure.
func (c Command) Failed() bool {
	return c.ExitCode != nil && *c.ExitCode != 0
}

// Interim reports whether the command has no exit code yet — an interim
// status update with no success/recovery branch.
func (c Command) Interim() bool {
	return c.ExitCode == nil
}
