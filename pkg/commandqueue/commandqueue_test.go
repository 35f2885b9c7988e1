package commandqueue

import (
	"context"
	"testing"

	"github.com/fleetforge/controlplane/pkg/resource"
)

func TestEnqueueRejectsNodeCommandWithoutNodeID(t *testing.T) {
	_, err := Enqueue(context.Background(), nil, NewCommand{
		CmdType: resource.CommandCreateNode,
	})
	if err == nil {
		t.Fatal("expected error when a node command is enqueued without a node id")
	}
}
