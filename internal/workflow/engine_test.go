package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/observability"
	"github.com/pitabwire/aduan/internal/ticket"
	"github.com/pitabwire/aduan/model"
)

func newTestEngine(t *testing.T) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	eng := NewEngine(store, ticket.NewMemoryCounter(), zap.NewNop(), metrics)
	return eng, store
}

// driveToTicket advances a text incident workflow through every step and
// returns the final reply carrying the ticket.
func driveToTicket(t *testing.T, eng *Engine, workflowID string) model.Reply {
	t.Helper()
	actions := []struct {
		action string
		data   map[string]any
	}{
		{"step2_description", map[string]any{"description": "tree blocking the road"}},
		{"step3_confirm_incident", map[string]any{"confirmed": true}},
		{"step4_location", map[string]any{"location": "Jalan Bagan Jermal"}},
		{"step5_hazard", map[string]any{"hazard": true}},
	}
	var reply model.Reply
	for _, step := range actions {
		var err error
		reply, err = eng.Advance(context.Background(), workflowID, step.action, step.data)
		if err != nil {
			t.Fatalf("Advance(%s) error: %v", step.action, err)
		}
	}
	return reply
}

// --- Detect ---

func TestDetect_image_overrides_text(t *testing.T) {
	for _, message := range []string{"", "aduan about bins", "there was an accident", "hello"} {
		if got := Detect(message, true); got != model.IntentImageIncident {
			t.Errorf("Detect(%q, image) = %q, want image_incident", message, got)
		}
	}
}

func TestDetect_keywords(t *testing.T) {
	tests := []struct {
		message string
		want    model.Intent
	}{
		{"I want to file a complaint about waste collection", model.IntentComplaint},
		{"aduan lampu jalan", model.IntentComplaint},
		{"there was an accident on the bridge", model.IntentTextIncident},
		{"banjir di jalan utama", model.IntentTextIncident},
		{"what are your opening hours", model.IntentGeneral},
		{"", model.IntentGeneral},
	}
	for _, tt := range tests {
		if got := Detect(tt.message, false); got != tt.want {
			t.Errorf("Detect(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestDetect_complaint_wins_tie(t *testing.T) {
	// Matches both vocabularies; complaint is the documented tie-break.
	got := Detect("complaint about the accident damage on my street", false)
	if got != model.IntentComplaint {
		t.Errorf("Detect = %q, want complaint on ambiguous text", got)
	}
}

// --- Start ---

func TestEngine_Start(t *testing.T) {
	eng, store := newTestEngine(t)

	reply, err := eng.Start(context.Background(), "sess-a", model.WorkflowComplaint, nil)
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if reply.Message == "" {
		t.Error("empty opening prompt")
	}
	if reply.WorkflowID == "" {
		t.Error("empty workflow ID")
	}

	wctx, _ := store.Get(context.Background(), reply.WorkflowID)
	if wctx.CurrentStep != 1 {
		t.Errorf("CurrentStep = %d, want 1", wctx.CurrentStep)
	}
	if wctx.Status != model.WorkflowStatusActive {
		t.Errorf("Status = %q", wctx.Status)
	}
}

func TestEngine_Start_seed_data(t *testing.T) {
	eng, store := newTestEngine(t)

	reply, err := eng.Start(context.Background(), "sess-a", model.WorkflowImageIncident,
		map[string]any{"image_ref": "img-123"})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	wctx, _ := store.Get(context.Background(), reply.WorkflowID)
	if wctx.CollectedData["image_ref"] != "img-123" {
		t.Errorf("CollectedData = %v", wctx.CollectedData)
	}
}

func TestEngine_Start_unknown_type(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Start(context.Background(), "sess-a", model.WorkflowType("parade"), nil)
	if model.CodeOf(err) != model.ErrBadRequest {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrBadRequest)
	}
}

func TestEngine_Start_second_workflow_conflicts(t *testing.T) {
	eng, _ := newTestEngine(t)
	if _, err := eng.Start(context.Background(), "sess-a", model.WorkflowComplaint, nil); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	_, err := eng.Start(context.Background(), "sess-a", model.WorkflowTextIncident, nil)
	if model.CodeOf(err) != model.ErrConflict {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrConflict)
	}
}

// --- Advance ---

func TestEngine_Advance_sequence(t *testing.T) {
	eng, store := newTestEngine(t)
	start, _ := eng.Start(context.Background(), "sess-a", model.WorkflowComplaint, nil)

	reply, err := eng.Advance(context.Background(), start.WorkflowID, "step2_describe",
		map[string]any{"description": "bins not collected for a week"})
	if err != nil {
		t.Fatalf("Advance error: %v", err)
	}
	if reply.Message == "" {
		t.Error("empty step prompt")
	}
	if reply.Ticket != nil {
		t.Error("ticket issued before the final step")
	}

	wctx, _ := store.Get(context.Background(), start.WorkflowID)
	if wctx.CurrentStep != 2 {
		t.Errorf("CurrentStep = %d, want 2", wctx.CurrentStep)
	}
	if wctx.CollectedData["description"] != "bins not collected for a week" {
		t.Errorf("CollectedData = %v", wctx.CollectedData)
	}
}

func TestEngine_Advance_out_of_sequence_rejected(t *testing.T) {
	eng, store := newTestEngine(t)
	start, _ := eng.Start(context.Background(), "sess-a", model.WorkflowTextIncident, nil)

	// Skipping straight to the hazard step right after start.
	_, err := eng.Advance(context.Background(), start.WorkflowID, "step5_hazard",
		map[string]any{"hazard": true})
	if model.CodeOf(err) != model.ErrInvalidWorkflowStep {
		t.Fatalf("code = %q, want %q", model.CodeOf(err), model.ErrInvalidWorkflowStep)
	}

	wctx, _ := store.Get(context.Background(), start.WorkflowID)
	if wctx.CurrentStep != 1 {
		t.Errorf("CurrentStep = %d, rejection must not mutate state", wctx.CurrentStep)
	}
	if len(wctx.CollectedData) != 0 {
		t.Errorf("CollectedData = %v, rejection must not merge data", wctx.CollectedData)
	}
}

func TestEngine_Advance_step_monotonic(t *testing.T) {
	eng, store := newTestEngine(t)
	start, _ := eng.Start(context.Background(), "sess-a", model.WorkflowTextIncident, nil)

	last := 1
	actions := []string{"step2_description", "step3_confirm_incident", "step4_location"}
	for _, action := range actions {
		if _, err := eng.Advance(context.Background(), start.WorkflowID, action, nil); err != nil {
			t.Fatalf("Advance(%s) error: %v", action, err)
		}
		wctx, _ := store.Get(context.Background(), start.WorkflowID)
		if wctx.CurrentStep <= last {
			t.Fatalf("CurrentStep = %d after %s, did not increase past %d", wctx.CurrentStep, action, last)
		}
		last = wctx.CurrentStep

		// Replaying the same action is now out of sequence.
		if _, err := eng.Advance(context.Background(), start.WorkflowID, action, nil); model.CodeOf(err) != model.ErrInvalidWorkflowStep {
			t.Fatalf("replayed %s: code = %q, want %q", action, model.CodeOf(err), model.ErrInvalidWorkflowStep)
		}
	}
}

func TestEngine_Advance_final_step_issues_ticket(t *testing.T) {
	eng, store := newTestEngine(t)
	start, _ := eng.Start(context.Background(), "sess-a", model.WorkflowTextIncident, nil)

	reply := driveToTicket(t, eng, start.WorkflowID)
	if reply.Ticket == nil {
		t.Fatal("final Advance returned no ticket")
	}
	if reply.Ticket.TicketNumber == "" {
		t.Error("empty ticket number")
	}
	if reply.Ticket.WorkflowType != model.WorkflowTextIncident {
		t.Errorf("ticket WorkflowType = %q", reply.Ticket.WorkflowType)
	}
	if reply.Ticket.CollectedData["location"] != "Jalan Bagan Jermal" {
		t.Errorf("ticket CollectedData = %v", reply.Ticket.CollectedData)
	}

	wctx, _ := store.Get(context.Background(), start.WorkflowID)
	if wctx.Status != model.WorkflowStatusTicketIssued {
		t.Errorf("Status = %q, want ticket_issued", wctx.Status)
	}
	if wctx.TicketNumber != reply.Ticket.TicketNumber {
		t.Errorf("TicketNumber = %q", wctx.TicketNumber)
	}

	// No further advancement after ticket issuance.
	_, err := eng.Advance(context.Background(), start.WorkflowID, "step5_hazard", nil)
	if model.CodeOf(err) != model.ErrInvalidWorkflowStep {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrInvalidWorkflowStep)
	}
}

func TestEngine_ticket_numbers_unique(t *testing.T) {
	eng, _ := newTestEngine(t)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		sessionID := "sess-" + string(rune('a'+i))
		start, err := eng.Start(context.Background(), sessionID, model.WorkflowTextIncident, nil)
		if err != nil {
			t.Fatalf("Start error: %v", err)
		}
		reply := driveToTicket(t, eng, start.WorkflowID)
		if seen[reply.Ticket.TicketNumber] {
			t.Fatalf("duplicate ticket number %q", reply.Ticket.TicketNumber)
		}
		seen[reply.Ticket.TicketNumber] = true
		if _, err := eng.Confirm(context.Background(), start.WorkflowID); err != nil {
			t.Fatalf("Confirm error: %v", err)
		}
	}
}

// --- Confirm ---

func TestEngine_Confirm_removes_context(t *testing.T) {
	eng, _ := newTestEngine(t)
	start, _ := eng.Start(context.Background(), "sess-a", model.WorkflowTextIncident, nil)
	issued := driveToTicket(t, eng, start.WorkflowID)

	reply, err := eng.Confirm(context.Background(), start.WorkflowID)
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if !reply.Complete {
		t.Error("Complete = false")
	}
	if !strings.Contains(reply.Message, issued.Ticket.TicketNumber) {
		t.Errorf("confirmation %q does not quote ticket %q", reply.Message, issued.Ticket.TicketNumber)
	}

	// The retired workflow ID no longer resolves.
	_, err = eng.Advance(context.Background(), start.WorkflowID, "step5_hazard", nil)
	if model.CodeOf(err) != model.ErrWorkflowNotFound {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrWorkflowNotFound)
	}
}

func TestEngine_Confirm_before_ticket_rejected(t *testing.T) {
	eng, _ := newTestEngine(t)
	start, _ := eng.Start(context.Background(), "sess-a", model.WorkflowComplaint, nil)

	_, err := eng.Confirm(context.Background(), start.WorkflowID)
	if model.CodeOf(err) != model.ErrInvalidWorkflowStep {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrInvalidWorkflowStep)
	}
}

// --- Cancel ---

func TestEngine_Cancel(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, _ = eng.Start(context.Background(), "sess-a", model.WorkflowComplaint, nil)

	existed, err := eng.Cancel(context.Background(), "sess-a")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !existed {
		t.Error("existed = false, want true")
	}

	existed, err = eng.Cancel(context.Background(), "sess-a")
	if err != nil {
		t.Fatalf("second Cancel error: %v", err)
	}
	if existed {
		t.Error("second Cancel reported an active workflow")
	}
}

// --- ExpectedAction ---

func TestExpectedAction(t *testing.T) {
	eng, store := newTestEngine(t)
	start, _ := eng.Start(context.Background(), "sess-a", model.WorkflowImageIncident, nil)

	wctx, _ := store.Get(context.Background(), start.WorkflowID)
	action, ok := ExpectedAction(wctx)
	if !ok || action != "step2_confirm_incident" {
		t.Errorf("ExpectedAction = %q/%v, want step2_confirm_incident", action, ok)
	}

	driveImageToTicket(t, eng, start.WorkflowID)
	wctx, _ = store.Get(context.Background(), start.WorkflowID)
	if _, ok := ExpectedAction(wctx); ok {
		t.Error("ExpectedAction reported a next step after ticket issuance")
	}
}

func driveImageToTicket(t *testing.T, eng *Engine, workflowID string) {
	t.Helper()
	for _, action := range []string{"step2_confirm_incident", "step3_details_location", "step4_hazard"} {
		if _, err := eng.Advance(context.Background(), workflowID, action, nil); err != nil {
			t.Fatalf("Advance(%s) error: %v", action, err)
		}
	}
}
