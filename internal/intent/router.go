// Package intent routes inbound messages to the workflow engine or the
// general-answer collaborator.
package intent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/observability"
	"github.com/pitabwire/aduan/internal/workflow"
	"github.com/pitabwire/aduan/model"
)

// cancelKeywords are the only messages that escape an active workflow.
// Everything else a user sends mid-workflow advances that workflow, even if
// it reads like an unrelated question.
var cancelKeywords = map[string]bool{
	"cancel": true,
	"batal":  true,
}

const (
	cancelledMessage = "Your report has been cancelled. Is there anything else I can help you with?"
	apologyMessage   = "Sorry, we are experiencing technical difficulties. Please try again in a moment."
)

// Responder answers general questions outside any workflow. Backed by the
// external RAG collaborator.
type Responder interface {
	Answer(ctx context.Context, sessionID, message string) (string, error)
}

// StaticResponder answers every general question with a fixed message. It
// stands in for the retrieval collaborator when none is configured.
type StaticResponder struct {
	answer string
}

// NewStaticResponder creates a responder returning the given answer, or a
// generic pointer to the reporting flows when answer is empty.
func NewStaticResponder(answer string) *StaticResponder {
	if answer == "" {
		answer = "You can report an incident or lodge a complaint here. " +
			"Describe what happened, or attach a photo of the problem."
	}
	return &StaticResponder{answer: answer}
}

// Answer implements Responder.
func (s *StaticResponder) Answer(_ context.Context, _, _ string) (string, error) {
	return s.answer, nil
}

// Router classifies inbound messages and drives the workflow engine. A
// session with an active workflow is routed to that workflow
// unconditionally; classification only happens when no workflow is active.
type Router struct {
	engine    *workflow.Engine
	responder Responder
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewRouter creates a message router.
func NewRouter(engine *workflow.Engine, responder Responder, logger *zap.Logger, metrics *observability.Metrics) *Router {
	return &Router{
		engine:    engine,
		responder: responder,
		logger:    logger,
		metrics:   metrics,
	}
}

// Route handles one inbound message for a live session and produces the
// outbound payload.
func (r *Router) Route(ctx context.Context, msg model.InboundMessage) (model.OutboundResponse, error) {
	active, ok, err := r.engine.Active(ctx, msg.SessionID)
	if err != nil {
		return model.OutboundResponse{}, err
	}
	if ok {
		return r.continueWorkflow(ctx, msg, active)
	}

	intent := workflow.Detect(msg.Message, msg.HasImage)
	r.metrics.RecordIntentDetection(string(intent))

	wt, starts := intent.WorkflowType()
	if !starts {
		return r.answerGeneral(ctx, msg)
	}

	reply, err := r.engine.Start(ctx, msg.SessionID, wt, seedData(msg))
	if err != nil {
		return model.OutboundResponse{}, err
	}
	return model.OutboundResponse{
		Type:         model.ResponseTypeWorkflow,
		Response:     reply.Message,
		SessionID:    msg.SessionID,
		WorkflowType: wt,
		WorkflowID:   reply.WorkflowID,
		Options:      reply.Options,
	}, nil
}

// continueWorkflow advances the session's active workflow with the message.
func (r *Router) continueWorkflow(ctx context.Context, msg model.InboundMessage, active model.WorkflowContext) (model.OutboundResponse, error) {
	if cancelKeywords[strings.ToLower(strings.TrimSpace(msg.Message))] {
		if _, err := r.engine.Cancel(ctx, msg.SessionID); err != nil {
			return model.OutboundResponse{}, err
		}
		return model.OutboundResponse{
			Type:      model.ResponseTypeRAG,
			Response:  cancelledMessage,
			SessionID: msg.SessionID,
		}, nil
	}

	action, pending := workflow.ExpectedAction(active)
	if !pending {
		// Ticket already issued; this message acknowledges it.
		reply, err := r.engine.Confirm(ctx, active.WorkflowID)
		if err != nil {
			return model.OutboundResponse{}, err
		}
		return model.OutboundResponse{
			Type:         model.ResponseTypeWorkflowComplete,
			Response:     reply.Message,
			SessionID:    msg.SessionID,
			WorkflowType: active.Type,
			WorkflowID:   active.WorkflowID,
			TicketNumber: active.TicketNumber,
		}, nil
	}

	reply, err := r.engine.Advance(ctx, active.WorkflowID, action, stepData(action, msg))
	if err != nil {
		code := model.CodeOf(err)
		if code == model.ErrInvalidWorkflowStep || code == model.ErrConflict {
			// A concurrent message advanced the workflow first. Restate
			// what input is expected now instead of failing the turn.
			return r.clarify(ctx, msg.SessionID, active)
		}
		return model.OutboundResponse{}, err
	}

	out := model.OutboundResponse{
		Type:         model.ResponseTypeWorkflow,
		Response:     reply.Message,
		SessionID:    msg.SessionID,
		WorkflowType: active.Type,
		WorkflowID:   active.WorkflowID,
		Options:      reply.Options,
	}
	if reply.Ticket != nil {
		out.Type = model.ResponseTypeWorkflowComplete
		out.TicketNumber = reply.Ticket.TicketNumber
	}
	return out, nil
}

// clarify re-reads the workflow and restates its next expected prompt.
func (r *Router) clarify(ctx context.Context, sessionID string, stale model.WorkflowContext) (model.OutboundResponse, error) {
	current, ok, err := r.engine.Active(ctx, sessionID)
	if err != nil || !ok {
		current = stale
	}

	response := "Let's pick up where we left off."
	var options []string
	steps := model.Steps(current.Type)
	if current.CurrentStep > 0 && current.CurrentStep <= len(steps) {
		prev := steps[current.CurrentStep-1]
		response = prev.Prompt
		options = prev.Options
	}

	return model.OutboundResponse{
		Type:         model.ResponseTypeWorkflow,
		Response:     response,
		SessionID:    sessionID,
		WorkflowType: current.Type,
		WorkflowID:   current.WorkflowID,
		Options:      options,
	}, nil
}

// answerGeneral forwards to the RAG collaborator. Its failures collapse to
// a generic apology; internal detail stays in the logs.
func (r *Router) answerGeneral(ctx context.Context, msg model.InboundMessage) (model.OutboundResponse, error) {
	answer, err := r.responder.Answer(ctx, msg.SessionID, msg.Message)
	if err != nil {
		r.logger.Error("general answer failed",
			zap.String("session_id", msg.SessionID), zap.Error(err))
		answer = apologyMessage
	}
	return model.OutboundResponse{
		Type:      model.ResponseTypeRAG,
		Response:  answer,
		SessionID: msg.SessionID,
	}, nil
}

// seedData builds the opening collected data for a new workflow.
func seedData(msg model.InboundMessage) map[string]any {
	data := make(map[string]any)
	if msg.Message != "" {
		data["description"] = msg.Message
	}
	if msg.HasImage && msg.ImageData != "" {
		data["image_ref"] = msg.ImageData
	}
	if msg.Location != nil {
		data["location"] = locationValue(msg.Location)
	}
	return data
}

// stepData maps the free-form message onto the collected-data key the
// expected step gathers.
func stepData(action string, msg model.InboundMessage) map[string]any {
	data := make(map[string]any)
	switch {
	case strings.Contains(action, "describe"), strings.Contains(action, "description"):
		data["description"] = msg.Message
	case strings.Contains(action, "location") && msg.Location != nil:
		data["location"] = locationValue(msg.Location)
	case strings.Contains(action, "location"):
		data["location"] = msg.Message
	case strings.Contains(action, "hazard"):
		data["hazard"] = msg.Message
	case strings.Contains(action, "confirm"), strings.Contains(action, "verify"):
		data["confirmation"] = msg.Message
	default:
		data["response"] = msg.Message
	}
	if msg.HasImage && msg.ImageData != "" {
		data["image_ref"] = msg.ImageData
	}
	return data
}

func locationValue(loc *model.Location) any {
	if loc.Address != "" {
		return loc.Address
	}
	return map[string]any{"lat": loc.Lat, "lng": loc.Lng}
}
