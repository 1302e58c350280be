// Package helper defines the identity, routing and transport primitives
// shared by every helper in the three-party MPC ring.
package helper

import (
	"encoding/json"
	"fmt"
)

// Identity is the stable, opaque name of one of the three cooperating
// helpers. Two identities compare equal iff they name the same helper.
type Identity string

// Role is the part a helper plays for the lifetime of a single query.
// H1 is always the coordinator: the helper that received the external
// request. Roles are reassigned on every new query; no helper is
// permanently H1.
type Role int

const (
	// RoleUndefined is the zero value and never assigned to a real helper.
	RoleUndefined Role = iota
	H1
	H2
	H3
)

func (r Role) String() string {
	switch r {
	case H1:
		return "H1"
	case H2:
		return "H2"
	case H3:
		return "H3"
	default:
		return "undefined"
	}
}

// MarshalText implements encoding.TextMarshaler so Role can be used as
// a JSON object key in RoleAssignment's wire representation.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(data []byte) error {
	switch string(data) {
	case "H1":
		*r = H1
	case "H2":
		*r = H2
	case "H3":
		*r = H3
	default:
		return fmt.Errorf("helper: unknown role %q", data)
	}
	return nil
}

// Ring is the fixed set of three identities that make up a helper
// network. Non-goals exclude dynamic membership, so a Ring is immutable
// once built.
type Ring [3]Identity

// NewRing builds a three-party ring. Order matters only in that it is
// used to derive the deterministic [right, left] pair for each member.
func NewRing(h1, h2, h3 Identity) Ring {
	return Ring{h1, h2, h3}
}

// Others returns, for a given identity, the deterministic ordered pair
// [right, left] of its two peers in the ring. The identity must be a
// member of the ring.
func (r Ring) Others(self Identity) (right, left Identity, err error) {
	idx := -1
	for i, id := range r {
		if id == self {
			idx = i
			break
		}
	}
	if idx == -1 {
		return "", "", fmt.Errorf("helper: identity %q is not a member of the ring", self)
	}
	right = r[(idx+1)%len(r)]
	left = r[(idx+2)%len(r)]
	return right, left, nil
}

// RoleAssignment is a bijection between the three ring identities and
// the three roles, valid for the lifetime of one query.
type RoleAssignment struct {
	byIdentity map[Identity]Role
	byRole     map[Role]Identity
}

// NewRoleAssignment builds a RoleAssignment from the coordinator's point
// of view: self becomes H1, right becomes H2, left becomes H3.
func NewRoleAssignment(self, right, left Identity) RoleAssignment {
	return RoleAssignment{
		byIdentity: map[Identity]Role{self: H1, right: H2, left: H3},
		byRole:     map[Role]Identity{H1: self, H2: right, H3: left},
	}
}

// Role returns the role assigned to id, or RoleUndefined if id is not
// part of this assignment.
func (a RoleAssignment) Role(id Identity) Role {
	return a.byIdentity[id]
}

// Identity returns the identity assigned to role, or "" if the role is
// not part of this assignment.
func (a RoleAssignment) Identity(role Role) Identity {
	return a.byRole[role]
}

// Equal reports whether two assignments map every identity to the same
// role. Used by the role-assignment round-trip law in the test suite.
func (a RoleAssignment) Equal(other RoleAssignment) bool {
	if len(a.byIdentity) != len(other.byIdentity) {
		return false
	}
	for id, role := range a.byIdentity {
		if other.byIdentity[id] != role {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler, encoding the assignment as its
// role-keyed side (the inverse byIdentity map is reconstructible on
// unmarshal).
func (a RoleAssignment) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.byRole)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *RoleAssignment) UnmarshalJSON(data []byte) error {
	var byRole map[Role]Identity
	if err := json.Unmarshal(data, &byRole); err != nil {
		return err
	}
	byIdentity := make(map[Identity]Role, len(byRole))
	for role, id := range byRole {
		byIdentity[id] = role
	}
	a.byRole = byRole
	a.byIdentity = byIdentity
	return nil
}
