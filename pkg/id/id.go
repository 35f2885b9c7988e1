// Package id defines typed resource identifiers used throughout the control
// plane. Every resource kind gets its own Go type over uuid.UUID so that a
// HostID can never be passed where a NodeID is expected, while still binding
// directly to pgx as a plain UUID column.
package id

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// typed is the shared representation every resource ID wraps.
type typed struct {
	v uuid.UUID
}

// UserID identifies a User.
type UserID struct{ typed }

// OrgID identifies an Org.
type OrgID struct{ typed }

// HostID identifies a Host.
type HostID struct{ typed }

// NodeID identifies a Node.
type NodeID struct{ typed }

// ImageID identifies an Image.
type ImageID struct{ typed }

// ProtocolVersionID identifies a ProtocolVersion.
type ProtocolVersionID struct{ typed }

// RegionID identifies a Region.
type RegionID struct{ typed }

// IPAddressID identifies an IpAddress row.
type IPAddressID struct{ typed }

// CommandID identifies a Command.
type CommandID struct{ typed }

// ApiKeyID identifies an ApiKey.
type ApiKeyID struct{ typed }

// NodeLogID identifies a NodeLog entry.
type NodeLogID struct{ typed }

// InvitationID identifies an Invitation.
type InvitationID struct{ typed }

// SubscriptionID identifies a billing Subscription.
type SubscriptionID struct{ typed }

func newTyped() typed { return typed{v: uuid.New()} }

// --- UserID ---

// NewUserID generates a fresh random UserID.
func NewUserID() UserID { return UserID{newTyped()} }

// ParseUserID parses s as a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("parsing user id: %w", err)
	}
	return UserID{typed{u}}, nil
}

// --- OrgID ---

// NewOrgID generates a fresh random OrgID.
func NewOrgID() OrgID { return OrgID{newTyped()} }

// ParseOrgID parses s as an OrgID.
func ParseOrgID(s string) (OrgID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return OrgID{}, fmt.Errorf("parsing org id: %w", err)
	}
	return OrgID{typed{u}}, nil
}

// --- HostID ---

// NewHostID generates a fresh random HostID.
func NewHostID() HostID { return HostID{newTyped()} }

// ParseHostID parses s as a HostID.
func ParseHostID(s string) (HostID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return HostID{}, fmt.Errorf("parsing host id: %w", err)
	}
	return HostID{typed{u}}, nil
}

// --- NodeID ---

// NewNodeID generates a fresh random NodeID.
func NewNodeID() NodeID { return NodeID{newTyped()} }

// ParseNodeID parses s as a NodeID.
func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("parsing node id: %w", err)
	}
	return NodeID{typed{u}}, nil
}

// --- ImageID ---

// NewImageID generates a fresh random ImageID.
func NewImageID() ImageID { return ImageID{newTyped()} }

// ParseImageID parses s as an ImageID.
func ParseImageID(s string) (ImageID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ImageID{}, fmt.Errorf("parsing image id: %w", err)
	}
	return ImageID{typed{u}}, nil
}

// --- ProtocolVersionID ---

// NewProtocolVersionID generates a fresh random ProtocolVersionID.
func NewProtocolVersionID() ProtocolVersionID { return ProtocolVersionID{newTyped()} }

// ParseProtocolVersionID parses s as a ProtocolVersionID.
func ParseProtocolVersionID(s string) (ProtocolVersionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ProtocolVersionID{}, fmt.Errorf("parsing protocol version id: %w", err)
	}
	return ProtocolVersionID{typed{u}}, nil
}

// --- RegionID ---

// NewRegionID generates a fresh random RegionID.
func NewRegionID() RegionID { return RegionID{newTyped()} }

// ParseRegionID parses s as a RegionID.
func ParseRegionID(s string) (RegionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RegionID{}, fmt.Errorf("parsing region id: %w", err)
	}
	return RegionID{typed{u}}, nil
}

// --- IPAddressID ---

// NewIPAddressID generates a fresh random IPAddressID.
func NewIPAddressID() IPAddressID { return IPAddressID{newTyped()} }

// ParseIPAddressID parses s as an IPAddressID.
func ParseIPAddressID(s string) (IPAddressID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return IPAddressID{}, fmt.Errorf("parsing ip address id: %w", err)
	}
	return IPAddressID{typed{u}}, nil
}

// --- CommandID ---

// NewCommandID generates a fresh random CommandID.
func NewCommandID() CommandID { return CommandID{newTyped()} }

// ParseCommandID parses s as a CommandID.
func ParseCommandID(s string) (CommandID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return CommandID{}, fmt.Errorf("parsing command id: %w", err)
	}
	return CommandID{typed{u}}, nil
}

// --- ApiKeyID ---

// NewApiKeyID generates a fresh random ApiKeyID.
func NewApiKeyID() ApiKeyID { return ApiKeyID{newTyped()} }

// ParseApiKeyID parses s as an ApiKeyID.
func ParseApiKeyID(s string) (ApiKeyID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ApiKeyID{}, fmt.Errorf("parsing api key id: %w", err)
	}
	return ApiKeyID{typed{u}}, nil
}

// --- NodeLogID ---

// NewNodeLogID generates a fresh random NodeLogID.
func NewNodeLogID() NodeLogID { return NodeLogID{newTyped()} }

// ParseNodeLogID parses s as a NodeLogID.
func ParseNodeLogID(s string) (NodeLogID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeLogID{}, fmt.Errorf("parsing node log id: %w", err)
	}
	return NodeLogID{typed{u}}, nil
}

// --- InvitationID ---

// NewInvitationID generates a fresh random InvitationID.
func NewInvitationID() InvitationID { return InvitationID{newTyped()} }

// ParseInvitationID parses s as an InvitationID.
func ParseInvitationID(s string) (InvitationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return InvitationID{}, fmt.Errorf("parsing invitation id: %w", err)
	}
	return InvitationID{typed{u}}, nil
}

// --- SubscriptionID ---

// NewSubscriptionID generates a fresh random SubscriptionID.
func NewSubscriptionID() SubscriptionID { return SubscriptionID{newTyped()} }

// ParseSubscriptionID parses s as a SubscriptionID.
func ParseSubscriptionID(s string) (SubscriptionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SubscriptionID{}, fmt.Errorf("parsing subscription id: %w", err)
	}
	return SubscriptionID{typed{u}}, nil
}

// String returns the canonical UUID string form.
func (t typed) String() string { return t.v.String() }

// IsNil reports whether the identifier is the zero UUID.
func (t typed) IsNil() bool { return t.v == uuid.Nil }

// UUID returns the underlying uuid.UUID.
func (t typed) UUID() uuid.UUID { return t.v }

// Value implements driver.Valuer so typed IDs bind directly as SQL parameters.
func (t typed) Value() (driver.Value, error) { return t.v.String(), nil }

// Scan implements sql.Scanner so typed IDs can be read back out of pgx.
func (t *typed) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.v = uuid.Nil
		return nil
	case [16]byte:
		t.v = uuid.UUID(v)
		return nil
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("scanning id: %w", err)
		}
		t.v = u
		return nil
	case []byte:
		u, err := uuid.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("scanning id: %w", err)
		}
		t.v = u
		return nil
	default:
		return fmt.Errorf("scanning id: unsupported source type %T", src)
	}
}
