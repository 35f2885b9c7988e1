package resource

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
)

// HostType distinguishes cloud-provisioned from privately-owned hosts.
type HostType string

const (
	HostTypeCloud   HostType = "Cloud"
	HostTypePrivate HostType = "Private"
)

// HostManagedBy distinguishes automatically managed (cloud-provider API)
// hosts from manually onboarded ones.
type HostManagedBy string

const (
	ManagedByAutomatic HostManagedBy = "Automatic"
	ManagedByManual    HostManagedBy = "Manual"
)

// HostStatus is the host's reachability state as last reported by its agent.
type HostStatus string

const (
	HostStatusOnline  HostStatus = "Online"
	HostStatusOffline HostStatus = "Offline"
)

// Host is a physical or cloud machine that runs nodes on behalf of an org.
type Host struct {
	ID             id.HostID
	OrgID          *id.OrgID // nil for a platform-shared public host
	Name           string
	Version        string
	OS             string
	OSVersion      string
	IPAddr         netip.Prefix
	IPGateway      netip.Addr
	CPUCount       int
	MemSizeBytes   int64
	DiskSizeBytes  int64
	RegionID       *id.RegionID
	HostType       HostType
	ManagedBy      HostManagedBy
	MonthlyCostUSD *float64
	Status         HostStatus
	Tags           []string
	DeletedAt      *time.Time
	CreatedAt      time.Time
}

// ValidateGateway enforces that ip_gateway must not fall within the
// host's own address range.
func (h Host) ValidateGateway() error {
	if h.IPAddr.Contains(h.IPGateway) {
		return fmt.Errorf("gateway %s falls within host range %s", h.IPGateway, h.IPAddr)
	}
	return nil
}

// Region is a lookup table of deployment regions, referenced by Host and
// surfaced via the host.regions RPC.
type Region struct {
	ID          id.RegionID
	Key         string
	DisplayName string
}

// IPAddress is a reservable address on a host's subnet. At most one node may
// be assigned a given address.
type IPAddress struct {
	ID     id.IPAddressID
	IP     netip.Prefix
	HostID *id.HostID
	NodeID *id.NodeID // nil when unassigned
}

// Assigned reports whether the address is bound to a node.
func (ip IPAddress) Assigned() bool {
	return ip.NodeID != nil
}
