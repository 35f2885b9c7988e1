package resource

import (
	"net/netip"
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
)

// NodeStatus is the lifecycle state of a node.
type NodeStatus string

const (
	NodeStatusProvisioningPending NodeStatus = "ProvisioningPending"
	NodeStatusProvisioning        NodeStatus = "Provisioning"
	NodeStatusRunning             NodeStatus = "Running"
	NodeStatusUpdatePending       NodeStatus = "UpdatePending"
	NodeStatusUpdating            NodeStatus = "Updating"
	NodeStatusDeletePending       NodeStatus = "DeletePending"
	NodeStatusDeleting            NodeStatus = "Deleting"
	NodeStatusDeleted             NodeStatus = "Deleted"
	NodeStatusFailed              NodeStatus = "Failed"
)

// SyncStatus reports how caught-up a node's chain state is.
type SyncStatus string

const (
	SyncStatusUnknown SyncStatus = "Unknown"
	SyncStatusSyncing SyncStatus = "Syncing"
	SyncStatusSynced  SyncStatus = "Synced"
)

// StakingStatus reports a node's validator/staking participation.
type StakingStatus string

const (
	StakingStatusNone      StakingStatus = "None"
	StakingStatusFollowing StakingStatus = "Following"
	StakingStatusStaked    StakingStatus = "Staked"
)

// SimilarityMode is the scheduler's affinity policy.
type SimilarityMode string

const (
	SimilarityNone    SimilarityMode = ""
	SimilarityCluster SimilarityMode = "Cluster"
	SimilaritySpread  SimilarityMode = "Spread"
)

// ResourceMode is the scheduler's resource-ordering axis.
type ResourceMode string

const (
	ResourceModeMost  ResourceMode = "MostResources"
	ResourceModeLeast ResourceMode = "LeastResources"
)

// SchedulerPolicy is a node's placement policy, persisted alongside it so
// retries reuse the same policy.
type SchedulerPolicy struct {
	Similarity SimilarityMode
	Resource   ResourceMode
}

// Node is a single blockchain protocol process scheduled onto a host.
type Node struct {
	ID                id.NodeID
	OrgID             id.OrgID
	HostID            id.HostID
	ImageID           id.ImageID
	ProtocolVersionID id.ProtocolVersionID
	NodeType          string // caller-defined role tag, e.g. "validator" or "rpc"
	Name              string
	IP                netip.Prefix
	IPGateway         netip.Addr
	NodeStatus        NodeStatus
	SyncStatus        SyncStatus
	StakingStatus     StakingStatus
	BlockHeight       *int64
	VCPUCount         int
	MemSizeBytes      int64
	DiskSizeBytes     int64
	AllowIPs          []string
	DenyIPs           []string
	SchedulerPolicy   SchedulerPolicy
	CreatedBy         id.UserID
	DeletedAt         *time.Time
	CreatedAt         time.Time
}

// Requirements extracts the hardware requirement triple the scheduler
// filters on.
func (n Node) Requirements() (cpu int, memBytes, diskBytes int64) {
	return n.VCPUCount, n.MemSizeBytes, n.DiskSizeBytes
}

// NodeLogEvent is the append-only event kind recorded for a node's placement
// and lifecycle history.
type NodeLogEvent string

const (
	NodeLogCreated   NodeLogEvent = "Created"
	NodeLogSucceeded NodeLogEvent = "Succeeded"
	NodeLogFailed    NodeLogEvent = "Failed"
	NodeLogCanceled  NodeLogEvent = "Canceled"
)

// NodeLog is an append-only record of a node's placement/lifecycle events.
// Retry counters are derived by scanning these rows, never cached in memory
// across requests.
type NodeLog struct {
	ID        id.NodeLogID
	NodeID    id.NodeID
	HostID    id.HostID
	Event     NodeLogEvent
	CreatedAt time.Time
}
