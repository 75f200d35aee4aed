package labsync

import (
	"strings"
	"sync"

	"github.com/agentstation/labsync/pkg/notify"
	"github.com/agentstation/labsync/pkg/projection"
)

type jobPhase int

const (
	phaseNone jobPhase = iota
	phaseStart
	phaseComplete
	phaseFailed
	phaseRetry
)

// phaseOf maps a job status onto a notification phase.
func phaseOf(status string) jobPhase {
	switch strings.ToLower(status) {
	case "queued", "pending", "running", "started", "in_progress":
		return phaseStart
	case "completed", "complete", "succeeded", "success", "done":
		return phaseComplete
	case "failed", "error":
		return phaseFailed
	case "retry", "retrying":
		return phaseRetry
	default:
		return phaseNone
	}
}

type jobNotification struct {
	level    notify.Level
	title    string
	message  string
	category string
}

// jobTracker turns job progress events into notifications. A job announces
// its start once, however many running updates it sends.
type jobTracker struct {
	mu      sync.Mutex
	started map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{started: make(map[string]struct{})}
}

func (t *jobTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.started)
}

// notification returns the notification for job, if it warrants one.
func (t *jobTracker) notification(job projection.JobProgress) (jobNotification, bool) {
	phase := phaseOf(job.Status)
	if phase == phaseNone {
		return jobNotification{}, false
	}

	t.mu.Lock()
	_, seen := t.started[job.JobID]
	switch phase {
	case phaseStart:
		t.started[job.JobID] = struct{}{}
	default:
		delete(t.started, job.JobID)
	}
	t.mu.Unlock()
	if phase == phaseStart && seen {
		return jobNotification{}, false
	}

	noun, family := describe(job.Action)
	n := jobNotification{message: job.ProgressMessage}
	switch phase {
	case phaseStart:
		n.level, n.title = notify.LevelInfo, noun+" started"
	case phaseComplete:
		n.level, n.title = notify.LevelSuccess, noun+" completed"
	case phaseFailed:
		n.level, n.title = notify.LevelError, noun+" failed"
		if job.ErrorMessage != "" {
			n.message = job.ErrorMessage
		}
	case phaseRetry:
		n.level, n.title = notify.LevelWarning, noun+" retrying"
	}
	n.category = category(family, phase)
	if n.message == "" {
		n.message = strings.TrimSpace(job.Action + " " + job.JobID)
	}
	return n, true
}

// describe returns the display noun and category family of an action.
func describe(action string) (noun, family string) {
	switch strings.ToLower(strings.ReplaceAll(action, "_", "-")) {
	case "sync":
		return "Sync", "sync"
	case "image-sync":
		return "Image sync", notify.CategoryImageSync
	default:
		return "Job", "job"
	}
}

func category(family string, phase jobPhase) string {
	if family == notify.CategoryImageSync {
		return notify.CategoryImageSync
	}
	suffix := map[jobPhase]string{
		phaseStart:    "start",
		phaseComplete: "complete",
		phaseFailed:   "failed",
		phaseRetry:    "retry",
	}[phase]
	return family + "-" + suffix
}
