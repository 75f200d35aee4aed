// Package projection maintains the live view of one lab: its nodes, its
// links and the lab singleton, built from the messages pushed over the lab
// state connection.
//
// Messages are applied strictly in the order they are handed in. A later
// message for a key always replaces the earlier value; embedded timestamps
// are not compared. Readers get copies and never observe later mutations.
package projection

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/labsync/pkg/logging"
)

// Projection is the in-memory state of the subscribed lab.
type Projection struct {
	hooks

	logger *zerolog.Logger

	mu    sync.RWMutex
	nodes map[string]NodeState
	links map[string]LinkState
	lab   *LabState

	applied   atomic.Uint64
	ignored   atomic.Uint64
	malformed atomic.Uint64
}

// New creates an empty projection.
func New(logger *zerolog.Logger) *Projection {
	if logger == nil {
		logger = logging.Default()
	}
	return &Projection{
		logger: logger,
		nodes:  make(map[string]NodeState),
		links:  make(map[string]LinkState),
	}
}

// HandleMessage decodes and applies one raw frame. Malformed frames are
// logged and dropped without touching state.
func (p *Projection) HandleMessage(raw []byte) {
	msg, err := Decode(raw)
	if err != nil {
		p.malformed.Add(1)
		p.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Dropping malformed lab state message")
		return
	}
	p.Apply(msg)
}

// Apply dispatches a decoded message. Hooks run after the state change is
// visible and outside the state lock.
func (p *Projection) Apply(msg Message) {
	p.logger.Debug().Str("type", TypeOf(msg)).Msg("Applying lab state message")

	switch m := msg.(type) {
	case InitialState:
		nodes := make(map[string]NodeState, len(m.Nodes))
		for _, n := range m.Nodes {
			nodes[n.NodeID] = n
		}
		p.mu.Lock()
		p.nodes = nodes
		p.mu.Unlock()
		p.applied.Add(1)
		p.hooks.resync(p.Snapshot())

	case InitialLinks:
		links := make(map[string]LinkState, len(m.Links))
		for _, l := range m.Links {
			links[l.LinkName] = l
		}
		p.mu.Lock()
		p.links = links
		p.mu.Unlock()
		p.applied.Add(1)
		p.hooks.resync(p.Snapshot())

	case NodeStateMessage:
		p.mu.Lock()
		p.nodes[m.Node.NodeID] = m.Node
		p.mu.Unlock()
		p.applied.Add(1)
		p.hooks.nodeState(m.Node)

	case LinkStateMessage:
		p.mu.Lock()
		p.links[m.Link.LinkName] = m.Link
		p.mu.Unlock()
		p.applied.Add(1)
		p.hooks.linkState(m.Link)

	case LabStateMessage:
		lab := m.Lab
		p.mu.Lock()
		p.lab = &lab
		p.mu.Unlock()
		p.applied.Add(1)
		p.hooks.labState(lab)

	case JobProgressMessage:
		p.applied.Add(1)
		p.hooks.jobProgress(m.Job)

	case Heartbeat, Pong:
		p.applied.Add(1)

	case ErrorMessage:
		p.applied.Add(1)
		p.logger.Warn().Str("server_error", m.Message).Msg("Lab state server reported an error")

	case Unknown:
		p.ignored.Add(1)
		p.logger.Debug().Str("type", m.Type).Msg("Ignoring unknown lab state message")
	}
}

// Reset clears every mapping and the lab singleton.
func (p *Projection) Reset() {
	p.mu.Lock()
	p.nodes = make(map[string]NodeState)
	p.links = make(map[string]LinkState)
	p.lab = nil
	p.mu.Unlock()
	p.hooks.resync(p.Snapshot())
}

// Nodes returns a copy of the node mapping.
func (p *Projection) Nodes() map[string]NodeState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.nodes)
}

// Links returns a copy of the link mapping.
func (p *Projection) Links() map[string]LinkState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.links)
}

// Node returns one node by id.
func (p *Projection) Node(id string) (NodeState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.nodes[id]
	return n, ok
}

// Lab returns the lab singleton. ok is false until a lab_state arrives.
func (p *Projection) Lab() (LabState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lab == nil {
		return LabState{}, false
	}
	return *p.lab, true
}

// Snapshot returns a consistent copy of the whole projection.
func (p *Projection) Snapshot() Snapshot {
	p.mu.RLock()
	s := Snapshot{
		Nodes: maps.Clone(p.nodes),
		Links: maps.Clone(p.links),
		Taken: time.Now(),
	}
	if p.lab != nil {
		lab := *p.lab
		s.Lab = &lab
	}
	p.mu.RUnlock()
	s.Messages = p.Stats()
	return s
}

// Stats returns message counters.
func (p *Projection) Stats() Stats {
	return Stats{
		Applied:   p.applied.Load(),
		Ignored:   p.ignored.Load(),
		Malformed: p.malformed.Load(),
	}
}
