package projection

import "time"

// NodeState is the latest known state of one lab node, keyed by NodeID.
type NodeState struct {
	NodeID       string `json:"node_id" yaml:"node_id"`
	NodeName     string `json:"node_name,omitempty" yaml:"node_name,omitempty"`
	DesiredState string `json:"desired_state,omitempty" yaml:"desired_state,omitempty"`
	ActualState  string `json:"actual_state,omitempty" yaml:"actual_state,omitempty"`
	DisplayState string `json:"display_state,omitempty" yaml:"display_state,omitempty"`
	IsReady      bool   `json:"is_ready" yaml:"is_ready"`
	HostID       string `json:"host_id,omitempty" yaml:"host_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// LinkState is the latest known state of one lab link, keyed by LinkName.
type LinkState struct {
	LinkName     string `json:"link_name" yaml:"link_name"`
	SourceNode   string `json:"source_node,omitempty" yaml:"source_node,omitempty"`
	TargetNode   string `json:"target_node,omitempty" yaml:"target_node,omitempty"`
	DesiredState string `json:"desired_state,omitempty" yaml:"desired_state,omitempty"`
	ActualState  string `json:"actual_state,omitempty" yaml:"actual_state,omitempty"`
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// LabState is the singleton state of the subscribed lab.
type LabState struct {
	LabID string `json:"lab_id,omitempty" yaml:"lab_id,omitempty"`
	State string `json:"state" yaml:"state"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// JobProgress is a progress event for a background job. Jobs are not
// retained by the projection.
type JobProgress struct {
	JobID           string `json:"job_id" yaml:"job_id"`
	Action          string `json:"action,omitempty" yaml:"action,omitempty"`
	Status          string `json:"status" yaml:"status"`
	ProgressMessage string `json:"progress_message,omitempty" yaml:"progress_message,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Snapshot is an immutable copy of the projection.
type Snapshot struct {
	Lab      *LabState            `json:"lab,omitempty" yaml:"lab,omitempty"`
	Nodes    map[string]NodeState `json:"nodes" yaml:"nodes"`
	Links    map[string]LinkState `json:"links" yaml:"links"`
	Taken    time.Time            `json:"taken" yaml:"taken"`
	Messages Stats                `json:"messages" yaml:"messages"`
}

// Stats counts how inbound messages were handled.
type Stats struct {
	Applied   uint64 `json:"applied" yaml:"applied"`
	Ignored   uint64 `json:"ignored" yaml:"ignored"`
	Malformed uint64 `json:"malformed" yaml:"malformed"`
}
