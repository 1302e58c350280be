package helper

import (
	"encoding/json"
	"testing"
)

func TestRing_Others(t *testing.T) {
	ring := NewRing("h1", "h2", "h3")

	right, left, err := ring.Others("h1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if right != "h2" || left != "h3" {
		t.Fatalf("expected (h2, h3), got (%s, %s)", right, left)
	}

	right, left, err = ring.Others("h3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if right != "h1" || left != "h2" {
		t.Fatalf("expected (h1, h2), got (%s, %s)", right, left)
	}
}

func TestRing_Others_NotAMember(t *testing.T) {
	ring := NewRing("h1", "h2", "h3")
	if _, _, err := ring.Others("ghost"); err == nil {
		t.Fatalf("expected an error for a non-member identity")
	}
}

// TestRoleAssignment_RoundTrip: for any helper receiving a prepare
// request, Roles.Role(identity) equals the role the coordinator
// intended.
func TestRoleAssignment_RoundTrip(t *testing.T) {
	roles := NewRoleAssignment("h1", "h2", "h3")

	if roles.Role("h1") != H1 || roles.Role("h2") != H2 || roles.Role("h3") != H3 {
		t.Fatalf("role assignment did not round-trip: %+v", roles)
	}
	if roles.Identity(H1) != "h1" || roles.Identity(H2) != "h2" || roles.Identity(H3) != "h3" {
		t.Fatalf("identity lookup did not round-trip: %+v", roles)
	}
}

func TestRoleAssignment_JSONRoundTrip(t *testing.T) {
	roles := NewRoleAssignment("h1", "h2", "h3")

	data, err := json.Marshal(roles)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded RoleAssignment
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !roles.Equal(decoded) {
		t.Fatalf("round-tripped assignment differs: %+v vs %+v", roles, decoded)
	}
}
