package resource

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fleetforge/controlplane/pkg/id"
)

// keyPattern is the shared validity rule for protocol and variant keys:
// length < 3 is an error, any char outside [a-z0-9-] is an error.
var keyPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidProtocolKey reports whether key is a valid protocol_key.
func ValidProtocolKey(key string) error {
	return validKey("protocol_key", key)
}

// ValidVariantKey reports whether key is a valid variant_key.
func ValidVariantKey(key string) error {
	return validKey("variant_key", key)
}

func validKey(field, key string) error {
	if len(key) < 3 {
		return fmt.Errorf("%s %q must be at least 3 characters", field, key)
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%s %q must match [a-z0-9-]+", field, key)
	}
	return nil
}

// SemanticVersion is a dotted-triple version (major.minor.patch) that sorts
// in semantic order rather than lexicographic order.
type SemanticVersion struct {
	Major, Minor, Patch int
}

// ParseSemanticVersion parses "X.Y.Z".
func ParseSemanticVersion(s string) (SemanticVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return SemanticVersion{}, fmt.Errorf("version %q must have 3 dot-separated components", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return SemanticVersion{}, fmt.Errorf("version %q: component %q is not numeric", s, p)
		}
		nums[i] = n
	}
	return SemanticVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Less reports whether v sorts before other in semantic order.
func (v SemanticVersion) Less(other SemanticVersion) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

func (v SemanticVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Protocol identifies a blockchain protocol family, e.g. "geth".
type Protocol struct {
	Key string
}

// ProtocolVersion binds a protocol to a variant and semantic version, e.g.
// (geth, archive, 1.13.2).
type ProtocolVersion struct {
	ID          id.ProtocolVersionID
	ProtocolKey string
	VariantKey  string
	Version     SemanticVersion
}

// Image is a bootable disk image for a ProtocolVersion, with the minimum
// hardware it requires and optional per-org scoping.
type Image struct {
	ID                id.ImageID
	ProtocolVersionID id.ProtocolVersionID
	BuildVersion      string
	OrgID             *id.OrgID // nil means platform-visible
	MinCPUCores       int
	MinMemoryBytes    int64
	MinDiskBytes      int64
	FirewallAllowIPs  []string
	FirewallDenyIPs   []string
	Visibility        ImageVisibility
}

// ImageVisibility controls who may schedule nodes from an image.
type ImageVisibility string

const (
	ImageVisibilityPublic  ImageVisibility = "Public"
	ImageVisibilityPrivate ImageVisibility = "Private"
)
