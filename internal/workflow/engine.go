// Package workflow implements the multi-step guided reporting state
// machine. Each workflow type advances through a fixed step sequence,
// accumulating collected data, and issues a ticket on its final step.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/observability"
	"github.com/pitabwire/aduan/internal/ticket"
	"github.com/pitabwire/aduan/model"
)

// incidentVocabulary and complaintVocabulary drive keyword classification
// in Detect. Matching is case-insensitive substring, in English and Malay.
var (
	incidentVocabulary = []string{
		"incident", "accident", "emergency", "fire", "flood", "hazard",
		"injury", "fallen tree", "pothole", "landslide",
		"kemalangan", "kecemasan", "kebakaran", "banjir", "bahaya",
		"pokok tumbang", "jalan berlubang", "tanah runtuh",
	}
	complaintVocabulary = []string{
		"complaint", "complain", "dissatisfied", "unhappy", "poor service",
		"not collected", "no response", "broken streetlight", "report a problem",
		"aduan", "tidak puas hati", "tidak dikutip", "lampu jalan rosak",
	}
)

// Detect classifies a message into an intent. Pure, no side effects.
//
// An attached image always classifies as image_incident, regardless of the
// accompanying text. Otherwise the text is matched against the incident and
// complaint vocabularies; when both match, complaint wins as the more
// conservative reading of ambiguous service language.
func Detect(message string, hasImage bool) model.Intent {
	if hasImage {
		return model.IntentImageIncident
	}

	lower := strings.ToLower(message)
	if matchesAny(lower, complaintVocabulary) {
		return model.IntentComplaint
	}
	if matchesAny(lower, incidentVocabulary) {
		return model.IntentTextIncident
	}
	return model.IntentGeneral
}

func matchesAny(lower string, vocabulary []string) bool {
	for _, kw := range vocabulary {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Engine drives workflow contexts through their step sequences. All state
// lives in the injected Store; the engine itself is stateless, so
// independently dispatched invocations can share one store and observe the
// same conversation.
type Engine struct {
	store   Store
	tickets ticket.Counter
	logger  *zap.Logger
	metrics *observability.Metrics

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates a workflow engine.
func NewEngine(store Store, tickets ticket.Counter, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		store:   store,
		tickets: tickets,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Active returns the session's in-flight workflow context, if any.
func (e *Engine) Active(ctx context.Context, sessionID string) (model.WorkflowContext, bool, error) {
	return e.store.GetBySession(ctx, sessionID)
}

// Start creates a new workflow context for the session at step one and
// returns the opening prompt. Seed data, such as an image reference for
// image-driven reports, is stored as the initial collected data.
func (e *Engine) Start(ctx context.Context, sessionID string, wt model.WorkflowType, data map[string]any) (model.Reply, error) {
	steps := model.Steps(wt)
	if steps == nil {
		return model.Reply{}, model.NewBadRequestError(fmt.Sprintf("unknown workflow type %q", wt))
	}

	now := e.now()
	wctx := model.WorkflowContext{
		WorkflowID:    "wf-" + uuid.New().String(),
		Type:          wt,
		SessionID:     sessionID,
		CurrentStep:   1,
		Status:        model.WorkflowStatusActive,
		CollectedData: cloneData(data),
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	if err := e.store.Create(ctx, wctx); err != nil {
		return model.Reply{}, err
	}

	e.metrics.WorkflowStartsTotal.WithLabelValues(string(wt)).Inc()
	e.logger.Info("workflow started",
		zap.String("workflow_id", wctx.WorkflowID),
		zap.String("workflow_type", string(wt)),
		zap.String("session_id", sessionID))

	first := steps[0]
	return model.Reply{
		Message:    first.Prompt,
		Options:    first.Options,
		WorkflowID: wctx.WorkflowID,
		Type:       wt,
	}, nil
}

// Advance takes the workflow's next step. The supplied action must be the
// one the step sequence expects for the context's current position;
// anything else is rejected without mutating state. Data merges into the
// accumulated collected data, and the final step of the sequence issues
// the ticket.
func (e *Engine) Advance(ctx context.Context, workflowID, stepAction string, data map[string]any) (model.Reply, error) {
	wctx, err := e.store.Get(ctx, workflowID)
	if err != nil {
		return model.Reply{}, err
	}
	if wctx.Status != model.WorkflowStatusActive {
		return model.Reply{}, model.NewInvalidWorkflowStepError(
			fmt.Sprintf("workflow %q has already issued ticket %s; confirm to finish", workflowID, wctx.TicketNumber),
		)
	}

	steps := model.Steps(wctx.Type)
	if wctx.CurrentStep >= len(steps) {
		return model.Reply{}, model.NewInvalidWorkflowStepError(
			fmt.Sprintf("workflow %q has no further steps", workflowID),
		)
	}
	next := steps[wctx.CurrentStep]
	if stepAction != next.Action {
		e.metrics.WorkflowStepRejectsTotal.WithLabelValues(string(wctx.Type)).Inc()
		e.logger.Warn("workflow step rejected",
			zap.String("workflow_id", workflowID),
			zap.String("step_action", stepAction),
			zap.String("expected", next.Action),
			zap.Int("current_step", wctx.CurrentStep))
		return model.Reply{}, model.NewInvalidWorkflowStepError(
			fmt.Sprintf("action %q is out of sequence; expected %q", stepAction, next.Action),
		)
	}

	if wctx.CollectedData == nil {
		wctx.CollectedData = make(map[string]any)
	}
	for k, v := range data {
		wctx.CollectedData[k] = v
	}
	wctx.CurrentStep++
	wctx.UpdatedAt = e.now()

	reply := model.Reply{
		Message:    next.Prompt,
		Options:    next.Options,
		WorkflowID: workflowID,
		Type:       wctx.Type,
	}

	if next.IssuesTicket {
		number, err := e.tickets.Next(ctx, wctx.Type)
		if err != nil {
			return model.Reply{}, fmt.Errorf("issue ticket: %w", err)
		}
		tk := e.buildTicket(number, wctx)
		wctx.Status = model.WorkflowStatusTicketIssued
		wctx.TicketNumber = number
		reply.Ticket = &tk
		reply.Message = fmt.Sprintf("%s Your reference number is %s.", next.Prompt, number)
	}

	// The step increment and the data merge persist atomically; a failure
	// here leaves the context at its last committed step and the user's
	// next message resumes from there.
	if err := e.store.Update(ctx, wctx); err != nil {
		return model.Reply{}, err
	}

	e.metrics.WorkflowAdvancesTotal.WithLabelValues(string(wctx.Type)).Inc()
	if next.IssuesTicket {
		e.metrics.WorkflowCompletionsTotal.WithLabelValues(string(wctx.Type)).Inc()
		e.logger.Info("workflow ticket issued",
			zap.String("workflow_id", workflowID),
			zap.String("ticket_number", wctx.TicketNumber))
	}
	return reply, nil
}

// Confirm acknowledges an issued ticket and retires the workflow context.
// After Confirm the workflow ID no longer resolves.
func (e *Engine) Confirm(ctx context.Context, workflowID string) (model.Reply, error) {
	wctx, err := e.store.Get(ctx, workflowID)
	if err != nil {
		return model.Reply{}, err
	}
	if wctx.Status != model.WorkflowStatusTicketIssued {
		return model.Reply{}, model.NewInvalidWorkflowStepError(
			fmt.Sprintf("workflow %q has not issued a ticket yet", workflowID),
		)
	}

	if err := e.store.Delete(ctx, workflowID); err != nil {
		return model.Reply{}, err
	}

	e.logger.Info("workflow confirmed",
		zap.String("workflow_id", workflowID),
		zap.String("ticket_number", wctx.TicketNumber))
	return model.Reply{
		Message: fmt.Sprintf(
			"Thank you. Your report is logged under reference %s. You can quote this number to follow up.",
			wctx.TicketNumber),
		WorkflowID: workflowID,
		Type:       wctx.Type,
		Complete:   true,
	}, nil
}

// Cancel removes any active workflow context for the session, reporting
// whether one existed.
func (e *Engine) Cancel(ctx context.Context, sessionID string) (bool, error) {
	wctx, active, err := e.store.GetBySession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !active {
		return false, nil
	}

	existed, err := e.store.DeleteBySession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if existed {
		e.metrics.WorkflowCancelsTotal.WithLabelValues(string(wctx.Type)).Inc()
		e.logger.Info("workflow cancelled",
			zap.String("workflow_id", wctx.WorkflowID),
			zap.String("session_id", sessionID))
	}
	return existed, nil
}

// ExpectedAction returns the step action the workflow expects next. Used
// by the conversational layer, which always advances an active workflow
// with whatever the user sent.
func ExpectedAction(wctx model.WorkflowContext) (string, bool) {
	steps := model.Steps(wctx.Type)
	if wctx.Status != model.WorkflowStatusActive || wctx.CurrentStep >= len(steps) {
		return "", false
	}
	return steps[wctx.CurrentStep].Action, true
}

// buildTicket snapshots the collected data into an immutable ticket.
func (e *Engine) buildTicket(number string, wctx model.WorkflowContext) model.Ticket {
	subject := "Incident report"
	category := "incident"
	if wctx.Type == model.WorkflowComplaint {
		subject = "Service complaint"
		category = "complaint"
	}
	if desc, ok := wctx.CollectedData["description"].(string); ok && desc != "" {
		subject = desc
	}
	sub, _ := wctx.CollectedData["category"].(string)

	return model.Ticket{
		TicketNumber:  number,
		WorkflowType:  wctx.Type,
		Subject:       subject,
		Category:      category,
		SubCategory:   sub,
		CollectedData: cloneData(wctx.CollectedData),
		CreatedAt:     e.now(),
	}
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
