package query

import (
	"encoding/json"
	"testing"

	"github.com/zhiwenf/raw-ipa/pkg/helper"
)

// TestPrepareQuery_WireRoundTrip checks the coordinator->follower
// payload survives its wire encoding intact, IPA tuning parameters
// included: what a follower decodes in Prepare is exactly what the
// coordinator built in NewQuery.
func TestPrepareQuery_WireRoundTrip(t *testing.T) {
	req := PrepareQuery{
		QueryID: "query-1",
		Config: Config{
			FieldType: FieldFp32BitPrime,
			QueryType: IPA,
			IPA: &IPAConfig{
				NumMultiBits:             3,
				PerUserCreditCap:         3,
				MaxBreakdownKey:          3,
				AttributionWindowSeconds: 86400,
			},
		},
		Roles: helper.NewRoleAssignment("h1", "h2", "h3"),
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded PrepareQuery
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.QueryID != req.QueryID {
		t.Fatalf("query id did not round-trip: %s", decoded.QueryID)
	}
	if decoded.Config.FieldType != req.Config.FieldType || decoded.Config.QueryType != req.Config.QueryType {
		t.Fatalf("config did not round-trip: %+v", decoded.Config)
	}
	if decoded.Config.IPA == nil || *decoded.Config.IPA != *req.Config.IPA {
		t.Fatalf("IPA tuning did not round-trip: %+v", decoded.Config.IPA)
	}
	if !decoded.Roles.Equal(req.Roles) {
		t.Fatalf("role assignment did not round-trip: %+v", decoded.Roles)
	}
}
