package service

import (
	"time"

	"github.com/omnisense/dispatch/internal/models"
)

const queueSummaryTop = 5

type Stats struct {
	TotalCalls         int     `json:"total_calls"`
	ActiveCalls        int     `json:"active_calls"`
	QueuedCalls        int     `json:"queued_calls"`
	AICalls            int     `json:"ai_calls"`
	CompletedCalls     int     `json:"completed_calls"`
	DroppedCalls       int     `json:"dropped_calls"`
	ArchivedCalls      int     `json:"archived_calls"`
	CriticalCalls      int     `json:"critical_calls"`
	AverageSeverity    float64 `json:"average_severity"`
	OperatorsAvailable int     `json:"operators_available"`
	OperatorsBusy      int     `json:"operators_busy"`
	OperatorsOffline   int     `json:"operators_offline"`
}

// Snapshot is a consistent, read-only copy of the system state.
type Snapshot struct {
	Calls       []models.Call     `json:"active_calls"`
	Queue       []models.Call     `json:"queued_calls"`
	Archived    []models.Call     `json:"archived_calls"`
	Operators   []models.Operator `json:"operators"`
	Stats       Stats             `json:"stats"`
	Alerts      []Alert           `json:"alerts"`
	GeneratedAt time.Time         `json:"generated_at"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Calls:       []models.Call{},
		Queue:       []models.Call{},
		Archived:    o.calls.Archived(),
		Operators:   o.operatorModels(),
		GeneratedAt: o.now(),
	}

	scan := make([]models.Call, 0, o.calls.Len()+len(o.calls.History()))
	severitySum := 0
	for _, c := range o.calls.All() {
		clone := c.Clone()
		snap.Calls = append(snap.Calls, clone)
		scan = append(scan, clone)
		switch c.Status {
		case models.StatusCompleted:
			snap.Stats.CompletedCalls++
		case models.StatusDropped:
			snap.Stats.DroppedCalls++
		}
		if !c.Status.Active() {
			continue
		}
		snap.Stats.ActiveCalls++
		severitySum += c.SeverityScore
		if c.SeverityLevel == models.SeverityCritical {
			snap.Stats.CriticalCalls++
		}
		if c.AssignedTo == models.AIAgent {
			snap.Stats.AICalls++
		}
	}
	scan = append(scan, o.calls.History()...)

	for _, id := range o.queue.IDs() {
		if c, ok := o.calls.Get(id); ok {
			snap.Queue = append(snap.Queue, c.Clone())
		}
	}
	for _, op := range snap.Operators {
		switch op.Status {
		case models.OperatorAvailable:
			snap.Stats.OperatorsAvailable++
		case models.OperatorBusy:
			snap.Stats.OperatorsBusy++
		case models.OperatorOffline:
			snap.Stats.OperatorsOffline++
		}
	}

	snap.Stats.TotalCalls = o.calls.Created()
	snap.Stats.QueuedCalls = len(snap.Queue)
	snap.Stats.ArchivedCalls = len(snap.Archived)
	if snap.Stats.ActiveCalls > 0 {
		snap.Stats.AverageSeverity = float64(severitySum) / float64(snap.Stats.ActiveCalls)
	}
	snap.Alerts = o.patterns.Detect(scan)
	return snap
}

// Subscribe returns a channel that always holds the latest snapshot. Slow
// readers skip intermediate snapshots. The cancel func closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	o.subsMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.Snapshot()
	o.subsMu.Unlock()

	return ch, func() {
		o.subsMu.Lock()
		defer o.subsMu.Unlock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(ch)
		}
	}
}

// broadcast builds and delivers the snapshot while holding subsMu so that
// concurrent broadcasts cannot deliver out of order. It must never be called
// with mu held.
func (o *Orchestrator) broadcast() {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	if len(o.subs) == 0 {
		return
	}
	snap := o.Snapshot()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

type queueEntry struct {
	CallID        string               `json:"call_id"`
	CallNumber    int                  `json:"call_number"`
	SeverityScore int                  `json:"severity_score"`
	SeverityLevel models.SeverityLevel `json:"severity_level"`
	EmergencyType models.EmergencyType `json:"emergency_type"`
	Summary       string               `json:"summary"`
}

func (o *Orchestrator) queueSummary() map[string]any {
	top := []queueEntry{}
	for _, id := range o.queue.IDs() {
		if len(top) == queueSummaryTop {
			break
		}
		c, ok := o.calls.Get(id)
		if !ok {
			continue
		}
		top = append(top, queueEntry{
			CallID:        c.ID,
			CallNumber:    c.CallNumber,
			SeverityScore: c.SeverityScore,
			SeverityLevel: c.SeverityLevel,
			EmergencyType: c.EmergencyType,
			Summary:       c.Summary,
		})
	}
	return map[string]any{
		"type":       "queue_summary",
		"queue_size": o.queue.Len(),
		"top":        top,
	}
}
