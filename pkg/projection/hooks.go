package projection

import "sync"

// Hook function types for projection events
type (
	// NodeStateHook is called after a node_state message is applied
	NodeStateHook func(node NodeState)

	// LinkStateHook is called after a link_state message is applied
	LinkStateHook func(link LinkState)

	// LabStateHook is called after a lab_state message is applied
	LabStateHook func(lab LabState)

	// JobProgressHook is called for every job_progress message
	JobProgressHook func(job JobProgress)

	// ResyncHook is called after the projection is cleared or bulk-replaced
	ResyncHook func(snapshot Snapshot)
)

type hooks struct {
	mu            sync.RWMutex
	onNodeState   []NodeStateHook
	onLinkState   []LinkStateHook
	onLabState    []LabStateHook
	onJobProgress []JobProgressHook
	onResync      []ResyncHook
}

// OnNodeState registers a callback for node updates.
func (h *hooks) OnNodeState(fn NodeStateHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onNodeState = append(h.onNodeState, fn)
}

// OnLinkState registers a callback for link updates.
func (h *hooks) OnLinkState(fn LinkStateHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLinkState = append(h.onLinkState, fn)
}

// OnLabState registers a callback for lab updates.
func (h *hooks) OnLabState(fn LabStateHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLabState = append(h.onLabState, fn)
}

// OnJobProgress registers a callback for job progress events.
func (h *hooks) OnJobProgress(fn JobProgressHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onJobProgress = append(h.onJobProgress, fn)
}

// OnResync registers a callback for resets and bulk replacements.
func (h *hooks) OnResync(fn ResyncHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onResync = append(h.onResync, fn)
}

func (h *hooks) nodeState(n NodeState) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onNodeState {
		fn(n)
	}
}

func (h *hooks) linkState(l LinkState) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onLinkState {
		fn(l)
	}
}

func (h *hooks) labState(l LabState) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onLabState {
		fn(l)
	}
}

func (h *hooks) jobProgress(j JobProgress) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onJobProgress {
		fn(j)
	}
}

func (h *hooks) resync(s Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onResync {
		fn(s)
	}
}
