package helper

import "testing"

func TestRoute_ControlVsRecord(t *testing.T) {
	prepare := PrepareQueryRoute("q1")
	if !prepare.IsControlRoute() {
		t.Fatalf("PrepareQueryRoute should be a control route")
	}
	if prepare.IsRecordRoute() {
		t.Fatalf("PrepareQueryRoute should not be a record route")
	}

	records := RecordsRoute("q1", NewStep("mul"))
	if records.IsControlRoute() {
		t.Fatalf("RecordsRoute should not be a control route")
	}
	if !records.IsRecordRoute() {
		t.Fatalf("RecordsRoute should be a record route")
	}

	sendRecords := RecordsSendRoute("q1", NewStep("mul"))
	if !sendRecords.IsControlRoute() {
		t.Fatalf("RecordsSendRoute should be a control route")
	}
}

func TestRoute_SendRequiresControlRoute(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic sending on a record route")
		}
	}()
	requireControlRoute(RecordsRoute("q1", NewStep("mul")))
}

func TestRoute_ReceiveRequiresRecordRoute(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic receiving on a control route")
		}
	}()
	requireRecordRoute(PrepareQueryRoute("q1"))
}

func TestStep_Narrow(t *testing.T) {
	root := NewStep("mul")
	child := root.Narrow("value")
	if root.String() != "mul" {
		t.Fatalf("narrowing must not mutate the parent, got %s", root)
	}
	if child.String() != "mul/value" {
		t.Fatalf("expected mul/value, got %s", child)
	}
}

func TestProtocolVersion_Compatible(t *testing.T) {
	a := MustParseProtocolVersion("1.0.0")
	b := MustParseProtocolVersion("1.0.4")
	c := MustParseProtocolVersion("2.0.0")

	if !a.Compatible(b) {
		t.Fatalf("1.0.0 and 1.0.4 should be compatible (same major.minor)")
	}
	if a.Compatible(c) {
		t.Fatalf("1.0.0 and 2.0.0 should not be compatible")
	}
}
