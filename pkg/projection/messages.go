package projection

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/agentstation/labsync/pkg/constants"
	"github.com/agentstation/labsync/pkg/errors"
)

// Envelope is the wire form of every inbound message.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Time parses the envelope timestamp.
func (e Envelope) Time() (time.Time, bool) {
	if e.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	return t, err == nil
}

// Message is a decoded inbound message. The set of implementations is closed.
type Message interface {
	messageType() string
}

// InitialState replaces the whole node mapping.
type InitialState struct{ Nodes []NodeState }

// InitialLinks replaces the whole link mapping.
type InitialLinks struct{ Links []LinkState }

// NodeStateMessage upserts one node.
type NodeStateMessage struct{ Node NodeState }

// LinkStateMessage upserts one link.
type LinkStateMessage struct{ Link LinkState }

// LabStateMessage replaces the lab singleton.
type LabStateMessage struct{ Lab LabState }

// JobProgressMessage reports job progress.
type JobProgressMessage struct{ Job JobProgress }

// Heartbeat is a server liveness message.
type Heartbeat struct{}

// Pong acknowledges a client ping.
type Pong struct{}

// ErrorMessage is a non-fatal error reported by the server.
type ErrorMessage struct{ Message string }

// Unknown is any message type this client does not understand.
type Unknown struct{ Type string }

func (InitialState) messageType() string       { return constants.TypeInitialState }
func (InitialLinks) messageType() string       { return constants.TypeInitialLinks }
func (NodeStateMessage) messageType() string   { return constants.TypeNodeState }
func (LinkStateMessage) messageType() string   { return constants.TypeLinkState }
func (LabStateMessage) messageType() string    { return constants.TypeLabState }
func (JobProgressMessage) messageType() string { return constants.TypeJobProgress }
func (Heartbeat) messageType() string          { return constants.TypeHeartbeat }
func (Pong) messageType() string               { return constants.TypePong }
func (ErrorMessage) messageType() string       { return constants.TypeError }
func (u Unknown) messageType() string          { return u.Type }

// TypeOf returns the wire type name of m.
func TypeOf(m Message) string {
	return m.messageType()
}

// Decode parses one raw inbound frame. Failures are ParseErrors.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.WrapParse("json", "envelope", err)
	}
	if env.Type == "" {
		return nil, errors.NewParseError("json", "envelope", "missing type", nil)
	}
	return decodeData(env)
}

func decodeData(env Envelope) (Message, error) {
	switch env.Type {
	case constants.TypeInitialState:
		var nodes []NodeState
		if err := decodeList(env, "nodes", &nodes); err != nil {
			return nil, err
		}
		return InitialState{Nodes: nodes}, nil
	case constants.TypeInitialLinks:
		var links []LinkState
		if err := decodeList(env, "links", &links); err != nil {
			return nil, err
		}
		return InitialLinks{Links: links}, nil
	case constants.TypeNodeState:
		var n NodeState
		if err := decodeObject(env, &n); err != nil {
			return nil, err
		}
		if n.NodeID == "" {
			return nil, errors.NewParseError("json", env.Type, "missing node_id", nil)
		}
		return NodeStateMessage{Node: n}, nil
	case constants.TypeLinkState:
		var l LinkState
		if err := decodeObject(env, &l); err != nil {
			return nil, err
		}
		if l.LinkName == "" {
			return nil, errors.NewParseError("json", env.Type, "missing link_name", nil)
		}
		return LinkStateMessage{Link: l}, nil
	case constants.TypeLabState:
		var l LabState
		if err := decodeObject(env, &l); err != nil {
			return nil, err
		}
		return LabStateMessage{Lab: l}, nil
	case constants.TypeJobProgress:
		var j JobProgress
		if err := decodeObject(env, &j); err != nil {
			return nil, err
		}
		return JobProgressMessage{Job: j}, nil
	case constants.TypeHeartbeat:
		return Heartbeat{}, nil
	case constants.TypePong:
		return Pong{}, nil
	case constants.TypeError:
		return ErrorMessage{Message: errorText(env.Data)}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

func decodeObject(env Envelope, v any) error {
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return errors.NewParseError("json", env.Type, "missing data", nil)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return errors.WrapParse("json", env.Type, err)
	}
	return nil
}

// decodeList accepts either a bare array or an object holding the array under key.
func decodeList(env Envelope, key string, v any) error {
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return errors.WrapParse("json", env.Type, err)
		}
		data = wrapped[key]
		if len(data) == 0 {
			return nil
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.WrapParse("json", env.Type, err)
	}
	return nil
}

func errorText(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(data, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &obj) == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Error
	}
	return string(data)
}
