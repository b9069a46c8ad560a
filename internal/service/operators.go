package service

import (
	"time"

	"github.com/omnisense/dispatch/internal/models"
)

// Endpoint is a connected party the orchestrator and the audio switch can
// push to. Implementations must not block.
type Endpoint interface {
	SendJSON(v any) error
	SendAudio(frame []byte) error
}

// OperatorSlot pairs an operator with its connected endpoint, if any.
type OperatorSlot struct {
	Model    models.Operator
	Endpoint Endpoint
}

// OperatorPool tracks operators in registration order, which is also the
// first-available scan order.
type OperatorPool struct {
	order     []string
	operators map[string]*OperatorSlot
}

func NewOperatorPool() *OperatorPool {
	return &OperatorPool{operators: map[string]*OperatorSlot{}}
}

// Register marks the operator AVAILABLE, keeping the lifetime counter of a
// returning operator. A reconnecting BUSY operator keeps its call.
func (p *OperatorPool) Register(id, name string, ep Endpoint) *OperatorSlot {
	if name == "" {
		name = "Officer " + id
	}
	e, ok := p.operators[id]
	if !ok {
		e = &OperatorSlot{Model: models.Operator{ID: id}}
		p.operators[id] = e
		p.order = append(p.order, id)
	}
	e.Model.Name = name
	if e.Model.Status != models.OperatorBusy {
		e.Model.Status = models.OperatorAvailable
		e.Model.CurrentCall = ""
		e.Model.JoinedAt = time.Now().UTC()
	}
	e.Endpoint = ep
	return e
}

func (p *OperatorPool) Get(id string) (*OperatorSlot, bool) {
	e, ok := p.operators[id]
	return e, ok
}

// FirstAvailable returns the earliest-registered AVAILABLE operator.
func (p *OperatorPool) FirstAvailable() (*OperatorSlot, bool) {
	for _, id := range p.order {
		if e := p.operators[id]; e.Model.Status == models.OperatorAvailable {
			return e, true
		}
	}
	return nil, false
}

func (p *OperatorPool) All() []*OperatorSlot {
	out := make([]*OperatorSlot, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.operators[id])
	}
	return out
}

func (e *OperatorSlot) release() {
	e.Model.CurrentCall = ""
	if e.Model.Status == models.OperatorBusy {
		e.Model.Status = models.OperatorAvailable
	}
}
