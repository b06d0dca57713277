package model

import "time"

// WorkflowType is the closed set of guided reporting flows.
type WorkflowType string

const (
	WorkflowComplaint     WorkflowType = "complaint"
	WorkflowTextIncident  WorkflowType = "text_incident"
	WorkflowImageIncident WorkflowType = "image_incident"
)

// Valid reports whether wt is a known workflow type.
func (wt WorkflowType) Valid() bool {
	switch wt {
	case WorkflowComplaint, WorkflowTextIncident, WorkflowImageIncident:
		return true
	}
	return false
}

// Intent is the classification of an inbound message when no workflow is
// active for its session. It extends WorkflowType with the general/RAG case.
type Intent string

const (
	IntentComplaint     Intent = Intent(WorkflowComplaint)
	IntentTextIncident  Intent = Intent(WorkflowTextIncident)
	IntentImageIncident Intent = Intent(WorkflowImageIncident)
	IntentGeneral       Intent = "general"
)

// WorkflowType returns the workflow type an intent starts, and false for
// the general intent.
func (i Intent) WorkflowType() (WorkflowType, bool) {
	if i == IntentGeneral {
		return "", false
	}
	return WorkflowType(i), true
}

// Workflow context status constants.
const (
	WorkflowStatusActive       = "active"
	WorkflowStatusTicketIssued = "ticket_issued"
)

// StepSpec describes one step in a workflow's expected sequence. Steps are
// addressed by position: CurrentStep counts completed steps, so the step at
// index n is taken when CurrentStep == n.
type StepSpec struct {
	// Action is the step action an Advance call must supply to take this
	// step. The first step's action is consumed by Start.
	Action string
	// Prompt is returned to the user when this step is entered.
	Prompt string
	// Options are quick-reply choices accompanying the prompt, if any.
	Options []string
	// IssuesTicket marks the step whose completion synthesizes the ticket.
	IssuesTicket bool
}

// stepTable holds the ordered expected step sequence per workflow type.
// Adding a workflow type is a data addition here, not a new branch in the
// engine.
var stepTable = map[WorkflowType][]StepSpec{
	WorkflowComplaint: {
		{
			Action: "start",
			Prompt: "I can help you log a service complaint. Please describe the issue you are facing.",
		},
		{
			Action: "step2_describe",
			Prompt: "Thank you. Which service does this concern, and when did you first notice the problem?",
			Options: []string{
				"Waste collection", "Drainage", "Street lighting",
				"Public facilities", "Other",
			},
		},
		{
			Action:  "step3_verify",
			Prompt:  "Got it. Please confirm the details above are correct so I can log your complaint.",
			Options: []string{"Confirm", "Edit details"},
		},
		{
			Action:       "step4_log",
			Prompt:       "Your complaint has been logged.",
			IssuesTicket: true,
		},
	},
	WorkflowTextIncident: {
		{
			Action: "start",
			Prompt: "It sounds like you want to report an incident. Please describe what happened. You may also attach a photo.",
		},
		{
			Action:  "step2_description",
			Prompt:  "Thanks. Just to confirm: is this an incident you want to report to the council?",
			Options: []string{"Yes, report it", "No"},
		},
		{
			Action: "step3_confirm_incident",
			Prompt: "Where did this happen? Share a location pin or type the address.",
		},
		{
			Action:  "step4_location",
			Prompt:  "Is the situation an immediate hazard to people or traffic?",
			Options: []string{"Yes, hazardous", "No"},
		},
		{
			Action:       "step5_hazard",
			Prompt:       "Your incident report has been logged.",
			IssuesTicket: true,
		},
	},
	WorkflowImageIncident: {
		{
			Action:  "start",
			Prompt:  "I received your photo. Would you like to report this as an incident?",
			Options: []string{"Yes, report it", "No"},
		},
		{
			Action: "step2_confirm_incident",
			Prompt: "Please add a short description and the location of the incident.",
		},
		{
			Action:  "step3_details_location",
			Prompt:  "Is the situation an immediate hazard to people or traffic?",
			Options: []string{"Yes, hazardous", "No"},
		},
		{
			Action:       "step4_hazard",
			Prompt:       "Your incident report has been logged.",
			IssuesTicket: true,
		},
	},
}

// Steps returns the ordered step sequence for the given workflow type, or
// nil for an unknown type. The returned slice must not be mutated.
func Steps(wt WorkflowType) []StepSpec {
	return stepTable[wt]
}

// WorkflowContext is the in-flight state of one guided conversation. At
// most one active context exists per session; contexts are persisted
// externally so independently dispatched invocations observe the same
// state.
type WorkflowContext struct {
	WorkflowID    string         `json:"workflow_id"`
	Type          WorkflowType   `json:"workflow_type"`
	SessionID     string         `json:"session_id"`
	CurrentStep   int            `json:"current_step"`
	Status        string         `json:"status"`
	CollectedData map[string]any `json:"collected_data,omitempty"`
	TicketNumber  string         `json:"ticket_number,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	// Version is the optimistic-concurrency stamp checked on every update,
	// guarding against concurrent advancement of the same context.
	Version int `json:"version"`
}

// Ticket is the terminal artifact of a completed workflow. Immutable once
// created; exactly one per completed workflow.
type Ticket struct {
	TicketNumber  string         `json:"ticket_number"`
	WorkflowType  WorkflowType   `json:"workflow_type"`
	Subject       string         `json:"subject"`
	Category      string         `json:"category,omitempty"`
	SubCategory   string         `json:"sub_category,omitempty"`
	CollectedData map[string]any `json:"collected_data,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Reply is what the workflow engine hands back to the conversational layer
// after Start, Advance, or Confirm.
type Reply struct {
	Message    string       `json:"message"`
	Options    []string     `json:"options,omitempty"`
	WorkflowID string       `json:"workflow_id"`
	Ticket     *Ticket      `json:"ticket,omitempty"`
	Type       WorkflowType `json:"workflow_type"`
	// Complete is true once the ticket has been issued and acknowledged.
	Complete bool `json:"complete,omitempty"`
}
