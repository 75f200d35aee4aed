package output

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/labsync/internal/server/filter"
	"github.com/agentstation/labsync/pkg/notify"
	"github.com/agentstation/labsync/pkg/preferences"
	"github.com/agentstation/labsync/pkg/projection"
)

// NodesTable lists nodes sorted by id.
func NodesTable(nodes map[string]projection.NodeState) Data {
	list := make([]projection.NodeState, 0, len(nodes))
	for _, n := range nodes {
		list = append(list, n)
	}
	slices.SortFunc(list, func(a, b projection.NodeState) int { return cmp.Compare(a.NodeID, b.NodeID) })

	d := Data{
		Title:   "Nodes",
		Headers: []string{"ID", "Name", "State", "Ready", "Bucket", "Desired", "Host", "Error"},
		Wide:    []bool{false, false, false, false, false, true, true, false},
	}
	for _, n := range list {
		d.Rows = append(d.Rows, []string{
			n.NodeID,
			n.NodeName,
			cmp.Or(n.DisplayState, n.ActualState, "-"),
			strconv.FormatBool(n.IsReady),
			filter.Bucket(n),
			n.DesiredState,
			n.HostID,
			n.ErrorMessage,
		})
	}
	return d
}

// LinksTable lists links sorted by name.
func LinksTable(links map[string]projection.LinkState) Data {
	list := make([]projection.LinkState, 0, len(links))
	for _, l := range links {
		list = append(list, l)
	}
	slices.SortFunc(list, func(a, b projection.LinkState) int { return cmp.Compare(a.LinkName, b.LinkName) })

	d := Data{
		Title:   "Links",
		Headers: []string{"Name", "Source", "Target", "State", "Desired", "Error"},
		Wide:    []bool{false, false, false, false, true, false},
	}
	for _, l := range list {
		d.Rows = append(d.Rows, []string{
			l.LinkName, l.SourceNode, l.TargetNode, cmp.Or(l.ActualState, "-"), l.DesiredState, l.ErrorMessage,
		})
	}
	return d
}

// NotificationsTable lists bell entries in the order given.
func NotificationsTable(items []notify.Notification) Data {
	d := Data{
		Title:   "Notifications",
		Headers: []string{"Time", "Level", "Title", "Message", "Category", "Read", "ID"},
		Wide:    []bool{false, false, false, false, true, false, true},
	}
	for _, n := range items {
		d.Rows = append(d.Rows, []string{
			n.Timestamp.Format(time.TimeOnly),
			string(n.Level),
			n.Title,
			n.Message,
			n.Category,
			strconv.FormatBool(n.Read),
			n.ID,
		})
	}
	return d
}

// PreferencesTable flattens preferences into dotted setting paths, the same
// paths "prefs set" accepts.
func PreferencesTable(p preferences.UserPreferences) (Data, error) {
	var groups map[string]map[string]any
	raw, err := json.Marshal(p)
	if err != nil {
		return Data{}, err
	}
	if err := json.Unmarshal(raw, &groups); err != nil {
		return Data{}, err
	}

	var rows [][]string
	for _, group := range groups {
		flatten("", group, &rows)
	}
	slices.SortFunc(rows, func(a, b []string) int { return cmp.Compare(a[0], b[0]) })
	return Data{
		Title:   "Preferences",
		Headers: []string{"Setting", "Value"},
		Rows:    rows,
	}, nil
}

func flatten(prefix string, m map[string]any, rows *[][]string) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(path, sub, rows)
			continue
		}
		*rows = append(*rows, []string{path, fmt.Sprint(v)})
	}
}

// Summary is a short lab header for status output.
func Summary(snap projection.Snapshot) string {
	var b strings.Builder
	if snap.Lab != nil {
		fmt.Fprintf(&b, "Lab %s: %s", cmp.Or(snap.Lab.LabID, "-"), snap.Lab.State)
		if snap.Lab.Error != "" {
			fmt.Fprintf(&b, " (%s)", snap.Lab.Error)
		}
		b.WriteString("\n")
	}
	counts := map[string]int{}
	for _, n := range snap.Nodes {
		counts[filter.Bucket(n)]++
	}
	fmt.Fprintf(&b, "%d nodes (%d running, %d stopped, %d errored), %d links\n",
		len(snap.Nodes), counts[filter.BucketRunning], counts[filter.BucketStopped], counts[filter.BucketErrored],
		len(snap.Links))
	return b.String()
}
