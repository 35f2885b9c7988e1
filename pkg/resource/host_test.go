package resource

import (
	"net/netip"
	"testing"

	"github.com/fleetforge/controlplane/pkg/id"
)

func TestHostValidateGatewayRejectsGatewayInsideRange(t *testing.T) {
	h := Host{
		IPAddr:    netip.MustParsePrefix("10.0.0.0/24"),
		IPGateway: netip.MustParseAddr("10.0.0.1"),
	}
	if err := h.ValidateGateway(); err == nil {
		t.Error("expected error when gateway falls within host range")
	}
}

func TestHostValidateGatewayAcceptsGatewayOutsideRange(t *testing.T) {
	h := Host{
		IPAddr:    netip.MustParsePrefix("10.0.0.0/24"),
		IPGateway: netip.MustParseAddr("192.168.1.1"),
	}
	if err := h.ValidateGateway(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIPAddressAssigned(t *testing.T) {
	nodeID := id.NewNodeID()
	assigned := IPAddress{NodeID: &nodeID}
	if !assigned.Assigned() {
		t.Error("expected Assigned() true when NodeID set")
	}
	unassigned := IPAddress{}
	if unassigned.Assigned() {
		t.Error("expected Assigned() false when NodeID nil")
	}
}
