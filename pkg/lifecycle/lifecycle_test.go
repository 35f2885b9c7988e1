package lifecycle

import (
	"testing"

	"github.com/fleetforge/controlplane/pkg/resource"
)

func TestAckStateTablesCoverSameCommands(t *testing.T) {
	for cmdType, pre := range ackPreState {
		post, ok := ackPostState[cmdType]
		if !ok {
			t.Errorf("%s has a pre-state but no post-state", cmdType)
		}
		if pre == post {
			t.Errorf("%s pre-state and post-state must differ, both %s", cmdType, pre)
		}
	}
}

func TestAckStateTransitions(t *testing.T) {
	cases := []struct {
		cmd  resource.CommandType
		pre  resource.NodeStatus
		post resource.NodeStatus
	}{
		{resource.CommandCreateNode, resource.NodeStatusProvisioningPending, resource.NodeStatusProvisioning},
		{resource.CommandUpgradeNode, resource.NodeStatusUpdatePending, resource.NodeStatusUpdating},
		{resource.CommandDeleteNode, resource.NodeStatusDeletePending, resource.NodeStatusDeleting},
	}
	for _, tc := range cases {
		if ackPreState[tc.cmd] != tc.pre {
			t.Errorf("%s pre-state = %s, want %s", tc.cmd, ackPreState[tc.cmd], tc.pre)
		}
		if ackPostState[tc.cmd] != tc.post {
			t.Errorf("%s post-state = %s, want %s", tc.cmd, ackPostState[tc.cmd], tc.post)
		}
	}
}
