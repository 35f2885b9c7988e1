package rbac

import "testing"

func TestExpandRolesUnionsPermissions(t *testing.T) {
	perms := ExpandRoles([]Role{RoleOrgMember, RoleHostAgent})
	for _, want := range []Permission{PermOrgRead, PermHostRead, PermCommandUpdate} {
		if _, ok := perms[want]; !ok {
			t.Errorf("expected permission %q in expanded set", want)
		}
	}
	if _, ok := perms[PermOrgDelete]; ok {
		t.Error("did not expect PermOrgDelete from org-member + host-agent roles")
	}
}

func TestIsAdminClass(t *testing.T) {
	if IsAdminClass([]Role{RoleOrgOwner}) {
		t.Error("org-owner is not an admin-class role")
	}
	if !IsAdminClass([]Role{RoleOrgMember, RoleSuperAdmin}) {
		t.Error("expected super-admin to be recognized as admin-class")
	}
}

func TestIsOrgScoped(t *testing.T) {
	if IsOrgScoped(RoleSuperAdmin) {
		t.Error("super-admin should not be org-scoped")
	}
	if !IsOrgScoped(RoleOrgAdmin) {
		t.Error("org-admin should be org-scoped")
	}
}
