package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/omnisense/dispatch/internal/ai"
	"github.com/omnisense/dispatch/internal/models"
)

var (
	ErrCallNotFound     = errors.New("call not found")
	ErrOperatorNotFound = errors.New("operator not found")
	ErrInvalidState     = errors.New("invalid state")
)

type QueuePolicy string

const (
	QueueImmediate      QueuePolicy = "immediate"
	QueueSufficientInfo QueuePolicy = "sufficient_info"
)

type Options struct {
	QueueInterval    time.Duration
	EscalationDelta  int
	PatternThreshold int
	HistoryLimit     int
	QueuePolicy      QueuePolicy
	AutoArchiveAfter time.Duration
	AgentTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueInterval <= 0 {
		o.QueueInterval = 2 * time.Second
	}
	if o.EscalationDelta <= 0 {
		o.EscalationDelta = 10
	}
	if o.PatternThreshold <= 0 {
		o.PatternThreshold = 3
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	if o.AgentTimeout <= 0 {
		o.AgentTimeout = 30 * time.Second
	}
	return o
}

// Archiver keeps a durable record of terminated calls.
type Archiver interface {
	ArchiveCall(ctx context.Context, call models.Call) error
}

// Orchestrator exclusively owns the call registry, the queue and the operator
// pool. Every mutation runs under mu, so operations never interleave; calls
// out to the triage agent happen with mu released and re-fetch state by id
// afterwards.
type Orchestrator struct {
	mu        sync.Mutex
	calls     *Registry
	queue     *PriorityQueue
	operators *OperatorPool
	patterns  PatternDetector
	agent     ai.Agent
	archiver  Archiver
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time
	endHooks  []func(callID string)

	subsMu  sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	scheduler *cron.Cron
}

// ParseQueuePolicy reads a policy name in any case. An empty name is the
// immediate policy; an unknown one reports false.
func ParseQueuePolicy(name string) (QueuePolicy, bool) {
	switch p := QueuePolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return QueueImmediate, true
	case QueueImmediate, QueueSufficientInfo:
		return p, true
	}
	return QueueImmediate, false
}

func NewOrchestrator(opts Options, agent ai.Agent, archiver Archiver, logger zerolog.Logger) *Orchestrator {
	opts = opts.withDefaults()
	policy, ok := ParseQueuePolicy(string(opts.QueuePolicy))
	if !ok {
		logger.Warn().Str("queue_policy", string(opts.QueuePolicy)).Msg("unknown queue policy, using immediate")
	}
	opts.QueuePolicy = policy
	return &Orchestrator{
		calls:     NewRegistry(opts.HistoryLimit),
		queue:     NewPriorityQueue(),
		operators: NewOperatorPool(),
		patterns:  NewPatternDetector(opts.PatternThreshold),
		agent:     agent,
		archiver:  archiver,
		opts:      opts,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		subs:      map[int]chan Snapshot{},
	}
}

// OnCallEnded registers fn to run, outside the lock, whenever a call
// terminates. Must be called before the orchestrator is in use.
func (o *Orchestrator) OnCallEnded(fn func(callID string)) {
	o.endHooks = append(o.endHooks, fn)
}

// Start schedules the periodic queue drain.
func (o *Orchestrator) Start() {
	cronLog := o.logger.With().Str("component", "scheduler").Logger()
	logger := cron.PrintfLogger(&cronLog)
	o.scheduler = cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	o.scheduler.Schedule(cron.Every(o.opts.QueueInterval), cron.FuncJob(o.Tick))
	o.scheduler.Start()
	o.logger.Info().Dur("interval", o.opts.QueueInterval).Msg("queue scheduler started")
}

// Stop halts the scheduler and waits for a running tick, bounded by ctx.
func (o *Orchestrator) Stop(ctx context.Context) {
	if o.scheduler == nil {
		return
	}
	done := o.scheduler.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (o *Orchestrator) CreateCall(ctx context.Context, contact string) (models.Call, error) {
	return o.CreateCallWithID(ctx, "", contact)
}

// CreateCallWithID creates a call under a caller-chosen id, or a fresh one
// when id is empty, and routes it to an operator or to the agent.
func (o *Orchestrator) CreateCallWithID(ctx context.Context, id, contact string) (models.Call, error) {
	var out outbox
	o.mu.Lock()
	if id == "" {
		id = uuid.NewString()
	} else if o.calls.Has(id) {
		o.mu.Unlock()
		return models.Call{}, fmt.Errorf("%w: call %s already exists", ErrInvalidState, id)
	}

	now := o.now()
	call := &models.Call{
		ID:            id,
		CallerContact: contact,
		EmergencyType: models.EmergencyUnknown,
		Summary:       "Processing...",
		Transcript:    []models.TranscriptEntry{},
		Status:        models.StatusIncoming,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.rescore(call)
	o.calls.Add(call)

	if slot, ok := o.operators.FirstAvailable(); ok {
		o.bind(call, slot, models.StatusOperatorHandling, &out)
	} else {
		call.AssignedTo = models.AIAgent
		call.Status = models.StatusAIHandling
		if o.opts.QueuePolicy == QueueImmediate {
			o.enqueue(call)
		}
		o.logger.Info().Str("call_id", id).Int("call_number", call.CallNumber).Msg("no operator available, call handed to agent")
	}
	result := call.Clone()
	o.mu.Unlock()

	o.logger.Info().Str("call_id", id).Str("contact", contact).Str("assigned_to", result.AssignedTo).Msg("call created")
	out.flush(o.logger)
	o.broadcast()
	return result, nil
}

// SendMessage records caller text, runs the triage agent and re-scores the
// call. The agent's reply is returned only while the agent owns the call.
func (o *Orchestrator) SendMessage(ctx context.Context, callID, text string) (string, error) {
	o.mu.Lock()
	call, ok := o.calls.Get(callID)
	if !ok {
		o.mu.Unlock()
		return "", ErrCallNotFound
	}
	if !call.Status.Active() {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: call %s is %s", ErrInvalidState, callID, call.Status)
	}
	o.appendTranscript(call, "caller", text)
	view := call.Clone()
	o.mu.Unlock()
	o.broadcast()

	actx, cancel := context.WithTimeout(ctx, o.opts.AgentTimeout)
	assessment, err := o.agent.HandleMessage(actx, view, text)
	cancel()
	if err != nil {
		o.log(ctx).Error().Err(err).Str("call_id", callID).Msg("triage agent failed")
		assessment = ai.Assessment{Reply: ai.FallbackReply}
	}
	if assessment.Reply == "" {
		assessment.Reply = ai.FallbackReply
	}

	var out outbox
	o.mu.Lock()
	call, ok = o.calls.Get(callID)
	if !ok || !call.Status.Active() {
		o.mu.Unlock()
		o.logger.Debug().Str("call_id", callID).Msg("call ended while agent was replying")
		return "", nil
	}
	applyAssessment(call, assessment)
	old := call.SeverityScore
	o.rescore(call)
	if call.SeverityScore > old+o.opts.EscalationDelta {
		o.logger.Info().Str("call_id", callID).Int("from", old).Int("to", call.SeverityScore).Msg("priority escalation")
		o.rerank()
	}
	if call.AssignedTo == models.AIAgent && !o.queue.Contains(callID) && o.opts.QueuePolicy == QueueSufficientInfo && sufficientInfo(call) {
		o.enqueue(call)
		o.drain(&out)
	}

	reply := ""
	if call.AssignedTo == models.AIAgent {
		reply = assessment.Reply
		o.appendTranscript(call, "agent", reply)
	}
	o.mu.Unlock()

	out.flush(o.logger)
	o.broadcast()
	return reply, nil
}

// Speak records an agent utterance, such as the greeting, on a call the
// agent still owns.
func (o *Orchestrator) Speak(callID, text string) bool {
	o.mu.Lock()
	call, ok := o.calls.Get(callID)
	if !ok || !call.Status.Active() || call.AssignedTo != models.AIAgent {
		o.mu.Unlock()
		return false
	}
	o.appendTranscript(call, "agent", text)
	o.mu.Unlock()
	o.broadcast()
	return true
}

// Disconnect terminates a call from the caller side. dropped marks a lost
// connection rather than a hang-up. Ending an already ended call is a no-op.
func (o *Orchestrator) Disconnect(callID string, dropped bool) error {
	var out outbox
	o.mu.Lock()
	call, ok := o.calls.Get(callID)
	if !ok {
		o.mu.Unlock()
		return ErrCallNotFound
	}
	if !call.Status.Active() {
		o.mu.Unlock()
		return nil
	}
	status := models.StatusCompleted
	if dropped {
		status = models.StatusDropped
	}
	o.terminate(call, status, &out)
	o.drain(&out)
	ended := call.Clone()
	o.mu.Unlock()

	o.logger.Info().Str("call_id", callID).Str("status", string(status)).Msg("caller disconnected")
	o.afterEnd(ended)
	out.flush(o.logger)
	o.broadcast()
	return nil
}

// Archive soft-deletes a terminated call. It stays visible to pattern
// detection through the history buffer.
func (o *Orchestrator) Archive(callID string) error {
	o.mu.Lock()
	call, ok := o.calls.Get(callID)
	if !ok {
		o.mu.Unlock()
		return ErrCallNotFound
	}
	if call.Status.Active() {
		o.mu.Unlock()
		return fmt.Errorf("%w: call %s is still %s", ErrInvalidState, callID, call.Status)
	}
	o.calls.Archive(callID)
	o.mu.Unlock()

	o.logger.Info().Str("call_id", callID).Msg("call archived")
	o.broadcast()
	return nil
}

// Tick is one pass of the periodic loop: archive stale terminated calls,
// drain the queue and push queue summaries to operators.
func (o *Orchestrator) Tick() {
	var out outbox
	o.mu.Lock()
	o.autoArchive()
	o.drain(&out)
	summary := o.queueSummary()
	for _, slot := range o.operators.All() {
		if slot.Endpoint != nil && slot.Model.Status != models.OperatorOffline {
			out.add(slot.Endpoint, summary)
		}
	}
	o.mu.Unlock()

	out.flush(o.logger)
	o.broadcast()
}

// AssignedParty reads the live owner of a call. active is false once the
// call has terminated or is unknown.
func (o *Orchestrator) AssignedParty(callID string) (party string, active bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	call, ok := o.calls.Get(callID)
	if !ok {
		return "", false
	}
	return call.AssignedTo, call.Status.Active()
}

// CurrentCall returns the call an operator is bound to.
func (o *Orchestrator) CurrentCall(operatorID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	slot, ok := o.operators.Get(operatorID)
	if !ok || slot.Model.CurrentCall == "" {
		return "", false
	}
	return slot.Model.CurrentCall, true
}

func (o *Orchestrator) Call(id string) (models.Call, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if call, ok := o.calls.Get(id); ok {
		return call.Clone(), true
	}
	for _, c := range o.calls.Archived() {
		if c.ID == id {
			return c, true
		}
	}
	return models.Call{}, false
}

func (o *Orchestrator) Operators() []models.Operator {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.operatorModels()
}

func (o *Orchestrator) Operator(id string) (models.Operator, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	slot, ok := o.operators.Get(id)
	if !ok {
		return models.Operator{}, false
	}
	return slot.Model, true
}

func (o *Orchestrator) enqueue(call *models.Call) {
	o.queue.Push(call.ID)
	call.Status = models.StatusQueued
	call.UpdatedAt = o.now()
}

// demote hands a call back to the agent at the head of the queue.
func (o *Orchestrator) demote(call *models.Call) {
	call.AssignedTo = models.AIAgent
	call.Status = models.StatusQueued
	call.UpdatedAt = o.now()
	o.queue.PushFront(call.ID)
}

// bind assigns call to the operator in slot and keeps both sides of the
// operator/call reference in step.
func (o *Orchestrator) bind(call *models.Call, slot *OperatorSlot, status models.CallStatus, out *outbox) {
	if prev := call.AssignedTo; prev != "" && prev != models.AIAgent && prev != slot.Model.ID {
		if other, ok := o.operators.Get(prev); ok && other.Model.CurrentCall == call.ID {
			other.release()
			out.add(other.Endpoint, map[string]any{"type": "call_reclaimed", "call_id": call.ID})
		}
	}
	o.queue.Remove(call.ID)

	now := o.now()
	call.AssignedTo = slot.Model.ID
	call.Status = status
	call.UpdatedAt = now
	if call.AnsweredAt == nil {
		call.AnsweredAt = &now
	}
	slot.Model.Status = models.OperatorBusy
	slot.Model.CurrentCall = call.ID
	slot.Model.CallsTaken++

	out.add(slot.Endpoint, assignmentMessage(call))
	o.logger.Info().Str("call_id", call.ID).Str("operator_id", slot.Model.ID).Int("severity", call.SeverityScore).Msg("call assigned")
}

// terminate ends a call, frees its operator and records it in history.
func (o *Orchestrator) terminate(call *models.Call, status models.CallStatus, out *outbox) {
	if slot, ok := o.operators.Get(call.AssignedTo); ok && slot.Model.CurrentCall == call.ID {
		slot.release()
		out.add(slot.Endpoint, map[string]any{"type": "call_ended", "call_id": call.ID})
	}
	o.queue.Remove(call.ID)
	now := o.now()
	call.Status = status
	call.CompletedAt = &now
	call.UpdatedAt = now
	o.calls.Remember(*call)
}

// drain heals dangling operator references, re-ranks the queue and hands
// queued calls to available operators until either runs out. Redundant calls
// are harmless.
func (o *Orchestrator) drain(out *outbox) {
	o.heal()
	o.rerank()
	for _, id := range o.queue.IDs() {
		slot, ok := o.operators.FirstAvailable()
		if !ok {
			return
		}
		call, _ := o.calls.Get(id)
		o.bind(call, slot, models.StatusInProgress, out)
	}
}

// pullNext binds the highest-ranked queued call to slot, if slot is free.
func (o *Orchestrator) pullNext(slot *OperatorSlot, out *outbox) {
	if slot.Model.Status != models.OperatorAvailable {
		return
	}
	o.rerank()
	id, ok := o.queue.Peek()
	if !ok {
		return
	}
	call, _ := o.calls.Get(id)
	o.bind(call, slot, models.StatusInProgress, out)
}

// rerank prunes stale ids and sorts the queue by score.
func (o *Orchestrator) rerank() {
	o.queue.Rerank(func(id string) (int, bool) {
		call, ok := o.calls.Get(id)
		if !ok || !call.Status.Active() || call.AssignedTo != models.AIAgent {
			return 0, false
		}
		return call.SeverityScore, true
	})
}

// heal repairs operator and call references that no longer point at each
// other: the operator is released and the call goes back to the agent.
func (o *Orchestrator) heal() {
	for _, slot := range o.operators.All() {
		cid := slot.Model.CurrentCall
		if cid == "" && slot.Model.Status != models.OperatorBusy {
			continue
		}
		call, ok := o.calls.Get(cid)
		if ok && call.AssignedTo == slot.Model.ID && call.Status.Active() {
			continue
		}
		o.logger.Warn().Str("operator_id", slot.Model.ID).Str("call_id", cid).Msg("dangling operator assignment released")
		slot.release()
	}
	for _, call := range o.calls.All() {
		if !call.Status.Active() || call.AssignedTo == models.AIAgent {
			continue
		}
		if slot, ok := o.operators.Get(call.AssignedTo); ok && slot.Model.CurrentCall == call.ID {
			continue
		}
		o.logger.Warn().Str("call_id", call.ID).Str("operator_id", call.AssignedTo).Msg("orphaned call returned to queue")
		o.demote(call)
	}
}

func (o *Orchestrator) autoArchive() {
	if o.opts.AutoArchiveAfter <= 0 {
		return
	}
	cutoff := o.now().Add(-o.opts.AutoArchiveAfter)
	for _, call := range o.calls.All() {
		if !call.Status.Active() && call.CompletedAt != nil && !call.CompletedAt.After(cutoff) {
			o.calls.Archive(call.ID)
			o.logger.Debug().Str("call_id", call.ID).Msg("call auto-archived")
		}
	}
}

func (o *Orchestrator) rescore(call *models.Call) {
	call.SeverityScore = ScoreCall(call)
	call.SeverityLevel = Level(call.SeverityScore)
}

func (o *Orchestrator) appendTranscript(call *models.Call, role, text string) {
	now := o.now()
	call.Transcript = append(call.Transcript, models.TranscriptEntry{Role: role, Text: text, Timestamp: now})
	call.UpdatedAt = now
}

// log prefers the request-scoped logger carried by ctx.
func (o *Orchestrator) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		sub := l.With().Str("component", "orchestrator").Logger()
		return &sub
	}
	return &o.logger
}

func (o *Orchestrator) afterEnd(call models.Call) {
	for _, fn := range o.endHooks {
		fn(call.ID)
	}
	if o.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.archiver.ArchiveCall(ctx, call); err != nil {
			o.logger.Error().Err(err).Str("call_id", call.ID).Msg("failed to archive call record")
		}
	}()
}

func (o *Orchestrator) operatorModels() []models.Operator {
	out := []models.Operator{}
	for _, slot := range o.operators.All() {
		out = append(out, slot.Model)
	}
	return out
}

func applyAssessment(call *models.Call, a ai.Assessment) {
	if a.EmergencyType != "" && a.EmergencyType != models.EmergencyUnknown {
		call.EmergencyType = a.EmergencyType
	}
	if a.Location != nil {
		call.Location = a.Location
	}
	if a.Victim != nil {
		call.Victim = a.Victim
	}
	if a.Extracted != nil {
		mergeExtracted(call, a.Extracted)
	}
	if a.Summary != "" {
		call.Summary = a.Summary
	}
}

// mergeExtracted folds a turn's extraction into the live call. Indicators
// accumulate, so a turn that started from an older copy of the call cannot
// drop indicators another turn added meanwhile.
func mergeExtracted(call *models.Call, in *models.ExtractedInfo) {
	if call.Extracted == nil {
		call.Extracted = &models.ExtractedInfo{}
	}
	ex := call.Extracted
	if in.EmergencyType != "" && in.EmergencyType != models.EmergencyUnknown {
		ex.EmergencyType = in.EmergencyType
	}
	if in.Location != nil {
		ex.Location = in.Location
	}
	for _, ind := range in.SeverityIndicators {
		if !slices.Contains(ex.SeverityIndicators, ind) {
			ex.SeverityIndicators = append(ex.SeverityIndicators, ind)
		}
	}
}

func sufficientInfo(call *models.Call) bool {
	return call.EmergencyType != models.EmergencyUnknown && call.Address() != ""
}

func assignmentMessage(call *models.Call) map[string]any {
	location := call.Address()
	if location == "" {
		location = "Unknown"
	}
	return map[string]any{
		"type":      "new_assignment",
		"call_id":   call.ID,
		"caller_id": call.CallerContact,
		"location":  location,
		"severity":  fmt.Sprintf("%s (%d)", call.SeverityLevel, call.SeverityScore),
		"summary":   call.Summary,
	}
}

type outMsg struct {
	ep      Endpoint
	payload any
}

// outbox collects endpoint notifications during a locked section so they are
// delivered after the lock is released.
type outbox []outMsg

func (b *outbox) add(ep Endpoint, payload any) {
	if ep == nil {
		return
	}
	*b = append(*b, outMsg{ep: ep, payload: payload})
}

func (b outbox) flush(logger zerolog.Logger) {
	for _, m := range b {
		if err := m.ep.SendJSON(m.payload); err != nil {
			logger.Debug().Err(err).Msg("endpoint notification dropped")
		}
	}
}
