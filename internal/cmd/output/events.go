package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agentstation/labsync/pkg/connection"
	"github.com/agentstation/labsync/pkg/notify"
	"github.com/agentstation/labsync/pkg/projection"
)

// Symbols used in event lines.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "!"
	SymbolInfo    = "i"
)

const (
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorReset  = "\033[0m"
)

// EventWriter prints one line per lab event. In JSON format each line is a
// {"type","time","data"} object. It is safe for concurrent use.
type EventWriter struct {
	mu    sync.Mutex
	w     io.Writer
	json  bool
	color bool
	now   func() time.Time
}

// NewEventWriter creates an EventWriter. Color is used only when w is a
// terminal and noColor is false.
func NewEventWriter(w io.Writer, format Format, noColor bool) *EventWriter {
	return &EventWriter{
		w:     w,
		json:  format == FormatJSON,
		color: !noColor && IsTerminal(w),
		now:   time.Now,
	}
}

// Node prints a node change.
func (e *EventWriter) Node(n projection.NodeState) {
	state := n.ActualState
	if n.DisplayState != "" {
		state = n.DisplayState
	}
	line := fmt.Sprintf("node %s %s", label(n.NodeName, n.NodeID), state)
	if n.ErrorMessage != "" {
		line += ": " + n.ErrorMessage
	}
	e.write("node", n, SymbolInfo, colorCyan, line)
}

// Link prints a link change.
func (e *EventWriter) Link(l projection.LinkState) {
	e.write("link", l, SymbolInfo, colorCyan,
		fmt.Sprintf("link %s (%s -> %s) %s", l.LinkName, l.SourceNode, l.TargetNode, l.ActualState))
}

// Lab prints a lab change.
func (e *EventWriter) Lab(l projection.LabState) {
	symbol, color := SymbolInfo, colorCyan
	line := "lab " + l.State
	if l.Error != "" {
		symbol, color = SymbolError, colorRed
		line += ": " + l.Error
	}
	e.write("lab", l, symbol, color, line)
}

// Resync prints a full state replacement.
func (e *EventWriter) Resync(s projection.Snapshot) {
	e.write("resync", s, SymbolInfo, colorCyan,
		fmt.Sprintf("state replaced: %d nodes, %d links", len(s.Nodes), len(s.Links)))
}

// Connection prints a connection status change.
func (e *EventWriter) Connection(st connection.Status) {
	symbol, color := SymbolInfo, colorCyan
	line := "connection " + st.State.String()
	switch st.State {
	case connection.Connected:
		symbol, color = SymbolSuccess, colorGreen
	case connection.Reconnecting:
		symbol, color = SymbolWarning, colorYellow
		line += fmt.Sprintf(" (attempt %d, retry in %s)", st.Attempt, st.Delay)
		if st.LastError != nil {
			line += ": " + st.LastError.Error()
		}
	}
	e.write("connection", map[string]any{"state": st.State, "attempt": st.Attempt}, symbol, color, line)
}

// Notification prints toasts as they are shown. Other router events are
// ignored.
func (e *EventWriter) Notification(ev notify.Event) {
	if ev.Type != notify.EventToastShown || ev.Notification == nil {
		return
	}
	n := ev.Notification
	symbol, color := levelStyle(n.Level)
	line := n.Title
	if n.Message != "" {
		line += ": " + n.Message
	}
	e.write("notification", n, symbol, color, line)
}

func levelStyle(l notify.Level) (string, string) {
	switch l {
	case notify.LevelError:
		return SymbolError, colorRed
	case notify.LevelWarning:
		return SymbolWarning, colorYellow
	case notify.LevelSuccess:
		return SymbolSuccess, colorGreen
	default:
		return SymbolInfo, colorCyan
	}
}

func (e *EventWriter) write(kind string, data any, symbol, color, line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()

	if e.json {
		b, err := json.Marshal(map[string]any{"type": kind, "time": now, "data": data})
		if err != nil {
			return
		}
		_, _ = fmt.Fprintf(e.w, "%s\n", b)
		return
	}
	if e.color {
		symbol = color + symbol + colorReset
	}
	_, _ = fmt.Fprintf(e.w, "%s %s %s\n", now.Format(time.TimeOnly), symbol, line)
}

func label(name, id string) string {
	if name == "" || name == id {
		return id
	}
	return name + " (" + id + ")"
}
