package claims

import (
	"fmt"

	"github.com/fleetforge/controlplane/pkg/ferr"
	"github.com/fleetforge/controlplane/pkg/rbac"
)

// Sentinel failure kinds authorization can fail with, tagged for the
// transport mapping in pkg/ferr: ErrExpiredToken/ErrInvalidToken map to
// Unauthenticated, ErrDatabaseUnavailable to Unavailable, and
// NotVisibleError/MissingPermError (via Unwrap) to Forbidden.
var (
	ErrExpiredToken        error = ferr.New(ferr.Unauthenticated, "claims: token expired")
	ErrInvalidToken        error = ferr.New(ferr.Unauthenticated, "claims: invalid token")
	ErrDatabaseUnavailable error = ferr.New(ferr.Unavailable, "claims: database unavailable")

	errForbidden = ferr.New(ferr.Forbidden, "claims: access denied")
)

// NotVisibleError reports that the claim's resource cannot see the target
// resource under the User⊃Org⊃Host⊃Node visibility hierarchy.
type NotVisibleError struct {
	ClaimKind  Kind
	TargetKind Kind
	TargetID   string
}

func (e *NotVisibleError) Error() string {
	return fmt.Sprintf("claims: %s claim cannot see %s %s", e.ClaimKind, e.TargetKind, e.TargetID)
}

func (e *NotVisibleError) Unwrap() error { return errForbidden }

// MissingPermError reports that the granted permission set lacked a required
// permission for the given target.
type MissingPermError struct {
	Perm   rbac.Permission
	Target Target
}

func (e *MissingPermError) Error() string {
	return fmt.Sprintf("claims: missing permission %q for %s", e.Perm, e.Target)
}

func (e *MissingPermError) Unwrap() error { return errForbidden }
