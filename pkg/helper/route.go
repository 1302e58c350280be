package helper

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// RouteID names the kind of control resource a Route addresses.
type RouteID int

const (
	// Records addresses a record-by-record share exchange for a
	// (QueryID, Step) pair.
	Records RouteID = iota + 1
	// ReceiveQuery addresses the external-collector to coordinator
	// submission of a new QueryConfig.
	ReceiveQuery
	// PrepareQuery addresses the coordinator to follower prepare
	// handshake.
	PrepareQuery
)

func (r RouteID) String() string {
	switch r {
	case Records:
		return "Records"
	case ReceiveQuery:
		return "ReceiveQuery"
	case PrepareQuery:
		return "PrepareQuery"
	default:
		return "Unknown"
	}
}

// QueryID identifies a query on this helper.
type QueryID string

// Step is a hierarchical protocol-location label. Two concurrent
// sub-protocols at the same depth must use distinct steps; the step
// uniquely addresses a logical channel within a query.
type Step struct {
	segments []string
}

// NewStep builds a root step out of its leading segment.
func NewStep(segment string) Step {
	return Step{segments: []string{segment}}
}

// Narrow appends a segment, returning a child step. Protocol authors use
// this to avoid record_id collisions between sibling sub-protocols.
func (s Step) Narrow(segment string) Step {
	next := make([]string, len(s.segments)+1)
	copy(next, s.segments)
	next[len(s.segments)] = segment
	return Step{segments: next}
}

// String renders the step as a '/'-joined path, used both for display
// and as the map key backing Gateway's per-step channel table.
func (s Step) String() string {
	return strings.Join(s.segments, "/")
}

// RecordID addresses one share exchange within a step. Values must be
// unique per step per sender-direction.
type RecordID uint64

// Route supplies the three addressing coordinates plus an opaque extra
// string. Each coordinate is either present with its concrete value or
// absent: absence is a nil-ness check on an unexported pointer field,
// and the constructor functions are the only way to build a Route, so
// a caller can never forge a route whose presence bits disagree with
// its constructor kind.
type Route struct {
	routeID *RouteID
	queryID *QueryID
	step    *Step
	extra   string
}

// ResourceIdentifier returns the RouteID and whether one is present.
func (r Route) ResourceIdentifier() (RouteID, bool) {
	if r.routeID == nil {
		return 0, false
	}
	return *r.routeID, true
}

// QueryID returns the query id and whether one is present.
func (r Route) QueryID() (QueryID, bool) {
	if r.queryID == nil {
		return "", false
	}
	return *r.queryID, true
}

// Step returns the step and whether one is present.
func (r Route) Step() (Step, bool) {
	if r.step == nil {
		return Step{}, false
	}
	return *r.step, true
}

// Extra returns the opaque routing extension string.
func (r Route) Extra() string {
	return r.extra
}

// IsControlRoute reports whether this route carries a RouteId, as
// required by Transport.Send.
func (r Route) IsControlRoute() bool {
	_, ok := r.ResourceIdentifier()
	return ok
}

// IsRecordRoute reports whether this route has no resource identifier
// but does carry a query id and step, as required by Transport.Receive.
func (r Route) IsRecordRoute() bool {
	if r.routeID != nil {
		return false
	}
	_, hasQuery := r.QueryID()
	_, hasStep := r.Step()
	return hasQuery && hasStep
}

func (r Route) String() string {
	rid, hasRID := r.ResourceIdentifier()
	qid, hasQID := r.QueryID()
	step, hasStep := r.Step()
	var b strings.Builder
	b.WriteString("Route{")
	if hasRID {
		fmt.Fprintf(&b, "route=%s ", rid)
	}
	if hasQID {
		fmt.Fprintf(&b, "query=%s ", qid)
	}
	if hasStep {
		fmt.Fprintf(&b, "step=%s ", step)
	}
	if r.extra != "" {
		fmt.Fprintf(&b, "extra=%s ", r.extra)
	}
	b.WriteString("}")
	return b.String()
}

// RecordsRoute builds the (NoResource, QueryID, Step) route used by
// Transport.Receive and by Gateway when streaming record bytes.
func RecordsRoute(query QueryID, step Step) Route {
	return Route{queryID: &query, step: &step}
}

// PrepareQueryRoute builds the coordinator->follower prepare route.
func PrepareQueryRoute(query QueryID) Route {
	rid := PrepareQuery
	return Route{routeID: &rid, queryID: &query}
}

// RecordsSendRoute builds the control-route variant of Records used by
// Transport.Send (it carries a RouteId, unlike RecordsRoute which is the
// receive-side key).
func RecordsSendRoute(query QueryID, step Step) Route {
	rid := Records
	return Route{routeID: &rid, queryID: &query, step: &step}
}

// ReceiveQueryRoute builds the external-collector to coordinator route
// used to submit a new QueryConfig. It carries no query id yet: the
// query id is minted by the coordinator as part of handling it.
func ReceiveQueryRoute() Route {
	rid := ReceiveQuery
	return Route{routeID: &rid}
}

// WithExtra attaches an opaque routing extension to a route and returns
// the updated value.
func (r Route) WithExtra(extra string) Route {
	r.extra = extra
	return r
}

// ProtocolVersion wraps a semantic version used to negotiate wire
// compatibility between helpers.
type ProtocolVersion struct {
	v *version.Version
}

// CurrentProtocolVersion is the version this helper speaks.
var CurrentProtocolVersion = MustParseProtocolVersion("1.0.0")

// ParseProtocolVersion parses a semantic version string.
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	v, err := version.NewVersion(s)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("helper: invalid protocol version %q: %w", s, err)
	}
	return ProtocolVersion{v: v}, nil
}

// MustParseProtocolVersion is ParseProtocolVersion, panicking on error.
// Only safe to use with constant version strings.
func MustParseProtocolVersion(s string) ProtocolVersion {
	v, err := ParseProtocolVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compatible reports whether two helpers speaking these versions can
// participate in the same query. Helpers are compatible when they share
// the same major.minor segment; patch versions may drift.
func (p ProtocolVersion) Compatible(other ProtocolVersion) bool {
	if p.v == nil || other.v == nil {
		return false
	}
	pSeg := p.v.Segments()
	oSeg := other.v.Segments()
	return pSeg[0] == oSeg[0] && pSeg[1] == oSeg[1]
}

func (p ProtocolVersion) String() string {
	if p.v == nil {
		return "0.0.0"
	}
	return p.v.String()
}
