// Package filter parses list query parameters for the relay's node and link
// endpoints and applies them to projection snapshots.
package filter

import (
	"cmp"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/agentstation/labsync/pkg/preferences"
	"github.com/agentstation/labsync/pkg/projection"
)

// Node buckets used by the sidebar filters.
const (
	BucketRunning = "running"
	BucketStopped = "stopped"
	BucketErrored = "errored"
)

var (
	runningStates = []string{"running", "started", "up", "ready"}
	erroredStates = []string{"error", "errored", "failed"}
)

// Bucket classifies a node as running, stopped or errored.
func Bucket(n projection.NodeState) string {
	state := strings.ToLower(cmp.Or(n.DisplayState, n.ActualState))
	switch {
	case n.ErrorMessage != "" || slices.Contains(erroredStates, state):
		return BucketErrored
	case slices.Contains(runningStates, state):
		return BucketRunning
	default:
		return BucketStopped
	}
}

// NodeFilter contains the filter criteria for nodes.
type NodeFilter struct {
	// States matches the actual or display state, case-insensitively.
	States       []string
	Ready        *bool
	Host         string
	NameContains string

	// Sidebar buckets; a node is kept when its bucket is shown.
	ShowRunning bool
	ShowStopped bool
	ShowErrored bool

	Sort   string
	Order  string
	Limit  int
	Offset int
}

// ParseNodeFilter reads node filter parameters. The sidebar buckets default
// to the user's canvas settings and can be overridden with running=,
// stopped= and errored=.
func ParseNodeFilter(r *http.Request, sidebar preferences.SidebarFilterSettings) NodeFilter {
	q := r.URL.Query()
	f := NodeFilter{
		States:       splitList(q.Get("state")),
		Ready:        parseBool(q.Get("ready")),
		Host:         q.Get("host"),
		NameContains: strings.ToLower(q.Get("name_contains")),
		ShowRunning:  boolOr(q.Get("running"), sidebar.ShowRunning),
		ShowStopped:  boolOr(q.Get("stopped"), sidebar.ShowStopped),
		ShowErrored:  boolOr(q.Get("errored"), sidebar.ShowErrored),
		Sort:         q.Get("sort"),
		Order:        q.Get("order"),
		Limit:        parseIntOrDefault(q.Get("limit"), 0),
		Offset:       parseIntOrDefault(q.Get("offset"), 0),
	}
	return f
}

// Apply returns the matching nodes, sorted and paginated.
func (f NodeFilter) Apply(nodes map[string]projection.NodeState) []projection.NodeState {
	out := make([]projection.NodeState, 0, len(nodes))
	for _, n := range nodes {
		if f.matches(n) {
			out = append(out, n)
		}
	}

	key := func(n projection.NodeState) string { return n.NodeID }
	switch f.Sort {
	case "name":
		key = func(n projection.NodeState) string { return cmp.Or(n.NodeName, n.NodeID) }
	case "state":
		key = func(n projection.NodeState) string { return n.ActualState }
	case "host":
		key = func(n projection.NodeState) string { return n.HostID }
	}
	slices.SortStableFunc(out, func(a, b projection.NodeState) int {
		return cmp.Or(cmp.Compare(key(a), key(b)), cmp.Compare(a.NodeID, b.NodeID))
	})
	if f.Order == "desc" {
		slices.Reverse(out)
	}
	return paginate(out, f.Offset, f.Limit)
}

func (f NodeFilter) matches(n projection.NodeState) bool {
	switch Bucket(n) {
	case BucketRunning:
		if !f.ShowRunning {
			return false
		}
	case BucketStopped:
		if !f.ShowStopped {
			return false
		}
	case BucketErrored:
		if !f.ShowErrored {
			return false
		}
	}
	if len(f.States) > 0 && !containsFold(f.States, n.ActualState) && !containsFold(f.States, n.DisplayState) {
		return false
	}
	if f.Ready != nil && n.IsReady != *f.Ready {
		return false
	}
	if f.Host != "" && n.HostID != f.Host {
		return false
	}
	if f.NameContains != "" &&
		!strings.Contains(strings.ToLower(n.NodeName), f.NameContains) &&
		!strings.Contains(strings.ToLower(n.NodeID), f.NameContains) {
		return false
	}
	return true
}

// LinkFilter contains the filter criteria for links.
type LinkFilter struct {
	States []string
	// Node keeps links with this node at either end.
	Node   string
	Order  string
	Limit  int
	Offset int
}

// ParseLinkFilter reads link filter parameters.
func ParseLinkFilter(r *http.Request) LinkFilter {
	q := r.URL.Query()
	return LinkFilter{
		States: splitList(q.Get("state")),
		Node:   q.Get("node"),
		Order:  q.Get("order"),
		Limit:  parseIntOrDefault(q.Get("limit"), 0),
		Offset: parseIntOrDefault(q.Get("offset"), 0),
	}
}

// Apply returns the matching links sorted by name, then paginated.
func (f LinkFilter) Apply(links map[string]projection.LinkState) []projection.LinkState {
	out := make([]projection.LinkState, 0, len(links))
	for _, l := range links {
		if len(f.States) > 0 && !containsFold(f.States, l.ActualState) {
			continue
		}
		if f.Node != "" && l.SourceNode != f.Node && l.TargetNode != f.Node {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b projection.LinkState) int { return cmp.Compare(a.LinkName, b.LinkName) })
	if f.Order == "desc" {
		slices.Reverse(out)
	}
	return paginate(out, f.Offset, f.Limit)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) *bool {
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &b
}

func boolOr(s string, def bool) bool {
	if b := parseBool(s); b != nil {
		return *b
	}
	return def
}

func parseIntOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return def
	}
	return i
}
