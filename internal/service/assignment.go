package service

import (
	"fmt"

	"github.com/omnisense/dispatch/internal/models"
)

// CompletionResult reports what CompleteCall finished and what the operator
// was handed next.
type CompletionResult struct {
	Completed string       `json:"completed_call_id,omitempty"`
	Next      *models.Call `json:"next_call,omitempty"`
}

// RegisterOperator adds or reconnects an operator and immediately pulls the
// top queued call onto it when it is free.
func (o *Orchestrator) RegisterOperator(id, name string, ep Endpoint) models.Operator {
	var out outbox
	o.mu.Lock()
	slot := o.operators.Register(id, name, ep)
	o.heal()
	o.pullNext(slot, &out)
	result := slot.Model
	o.mu.Unlock()

	o.logger.Info().Str("operator_id", id).Str("status", string(result.Status)).Msg("operator registered")
	out.flush(o.logger)
	o.broadcast()
	return result
}

// UnregisterOperator takes an operator offline. A call it was handling goes
// back to the agent at the head of the queue, where a free operator picks it
// up at once.
func (o *Orchestrator) UnregisterOperator(id string) error {
	var out outbox
	o.mu.Lock()
	slot, ok := o.operators.Get(id)
	if !ok {
		o.mu.Unlock()
		return ErrOperatorNotFound
	}
	reclaimed := ""
	if cid := slot.Model.CurrentCall; cid != "" {
		if call, ok := o.calls.Get(cid); ok && call.AssignedTo == id && call.Status.Active() {
			o.demote(call)
			reclaimed = cid
		}
	}
	slot.Model.Status = models.OperatorOffline
	slot.Model.CurrentCall = ""
	slot.Endpoint = nil
	o.drain(&out)
	o.mu.Unlock()

	ev := o.logger.Info().Str("operator_id", id)
	if reclaimed != "" {
		ev = ev.Str("reclaimed_call_id", reclaimed)
	}
	ev.Msg("operator unregistered")
	out.flush(o.logger)
	o.broadcast()
	return nil
}

// CompleteCall ends the operator's current call and synchronously hands it
// the highest-severity queued call, so the operator has no idle gap.
func (o *Orchestrator) CompleteCall(operatorID string) (CompletionResult, error) {
	var out outbox
	o.mu.Lock()
	slot, ok := o.operators.Get(operatorID)
	if !ok {
		o.mu.Unlock()
		return CompletionResult{}, ErrOperatorNotFound
	}

	var result CompletionResult
	var ended *models.Call
	if cid := slot.Model.CurrentCall; cid != "" {
		call, ok := o.calls.Get(cid)
		if ok && call.AssignedTo == operatorID && call.Status.Active() {
			o.terminate(call, models.StatusCompleted, &out)
			c := call.Clone()
			ended = &c
			result.Completed = cid
		} else {
			o.logger.Warn().Str("operator_id", operatorID).Str("call_id", cid).Msg("operator held a stale call reference")
			slot.release()
		}
	}

	o.pullNext(slot, &out)
	if next := slot.Model.CurrentCall; next != "" {
		if call, ok := o.calls.Get(next); ok {
			c := call.Clone()
			result.Next = &c
		}
	}
	o.mu.Unlock()

	if ended != nil {
		o.logger.Info().Str("operator_id", operatorID).Str("call_id", ended.ID).Msg("call completed")
		o.afterEnd(*ended)
	}
	out.flush(o.logger)
	o.broadcast()
	return result, nil
}

// ForceAssign binds a call to an operator regardless of queue order. The
// operator's previous call returns to the agent at the head of the queue and
// an operator previously holding the target call is released and takes the
// next queued call.
func (o *Orchestrator) ForceAssign(callID, operatorID string) (models.Call, error) {
	var out outbox
	o.mu.Lock()
	slot, ok := o.operators.Get(operatorID)
	if !ok {
		o.mu.Unlock()
		return models.Call{}, ErrOperatorNotFound
	}
	call, ok := o.calls.Get(callID)
	if !ok {
		o.mu.Unlock()
		return models.Call{}, ErrCallNotFound
	}
	if !call.Status.Active() {
		o.mu.Unlock()
		return models.Call{}, fmt.Errorf("%w: call %s is %s", ErrInvalidState, callID, call.Status)
	}
	if slot.Model.Status == models.OperatorOffline {
		o.mu.Unlock()
		return models.Call{}, fmt.Errorf("%w: operator %s is offline", ErrInvalidState, operatorID)
	}
	if call.AssignedTo == operatorID {
		result := call.Clone()
		o.mu.Unlock()
		return result, nil
	}

	if cur := slot.Model.CurrentCall; cur != "" {
		if prev, ok := o.calls.Get(cur); ok && prev.AssignedTo == operatorID && prev.Status.Active() {
			o.demote(prev)
			out.add(slot.Endpoint, map[string]any{"type": "call_reclaimed", "call_id": cur})
		}
		slot.release()
	}
	displaced := call.AssignedTo
	o.bind(call, slot, models.StatusInProgress, &out)
	if other, ok := o.operators.Get(displaced); ok {
		o.pullNext(other, &out)
	}
	result := call.Clone()
	o.mu.Unlock()

	o.logger.Info().Str("call_id", callID).Str("operator_id", operatorID).Msg("call force-assigned")
	out.flush(o.logger)
	o.broadcast()
	return result, nil
}
