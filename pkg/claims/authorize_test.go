package claims

import (
	"testing"

	"github.com/fleetforge/controlplane/pkg/rbac"
)

func TestCheckRequirementPerm(t *testing.T) {
	granted := map[rbac.Permission]struct{}{rbac.PermNodeRead: {}}
	if _, err := checkRequirement(Perm(rbac.PermNodeRead), granted, Target{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := checkRequirement(Perm(rbac.PermNodeDelete), granted, Target{}); err == nil {
		t.Fatal("expected MissingPermError")
	}
}

func TestCheckRequirementAllOf(t *testing.T) {
	granted := map[rbac.Permission]struct{}{rbac.PermNodeRead: {}, rbac.PermNodeCreate: {}}
	if _, err := checkRequirement(AllOf{rbac.PermNodeRead, rbac.PermNodeCreate}, granted, Target{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := checkRequirement(AllOf{rbac.PermNodeRead, rbac.PermNodeDelete}, granted, Target{}); err == nil {
		t.Fatal("expected MissingPermError when one permission absent")
	}
}

func TestCheckRequirementAnyOf(t *testing.T) {
	granted := map[rbac.Permission]struct{}{rbac.PermNodeCreate: {}}
	matched, err := checkRequirement(AnyOf{rbac.PermNodeDelete, rbac.PermNodeCreate}, granted, Target{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched != rbac.PermNodeCreate {
		t.Errorf("matched = %q, want PermNodeCreate", matched)
	}
}

func TestCheckNodeVisibilityOnlySelf(t *testing.T) {
	c := Claims{ResourceKind: KindNode, ResourceID: "node-1"}
	if err := checkNodeVisibility(c, NewTarget(KindNode, "node-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := checkNodeVisibility(c, NewTarget(KindNode, "node-2")); err == nil {
		t.Fatal("expected NotVisibleError for a different node")
	}
}

func TestSplitAPIKey(t *testing.T) {
	prefix, secret, ok := splitAPIKey("abcd1234:s3cr3t")
	if !ok || prefix != "abcd1234" || secret != "s3cr3t" {
		t.Fatalf("splitAPIKey: got %q %q %v", prefix, secret, ok)
	}
	if _, _, ok := splitAPIKey("eyJhbGciOi.eyJzdWIi.sig"); ok {
		t.Error("expected a JWT-shaped string not to be treated as an API key")
	}
}

func TestParseScope(t *testing.T) {
	kind, resID, err := parseScope("org:abc-123")
	if err != nil || kind != KindOrg || resID != "abc-123" {
		t.Fatalf("parseScope: got %v %q %v", kind, resID, err)
	}
	if _, _, err := parseScope("bogus"); err == nil {
		t.Error("expected error for malformed scope")
	}
}
