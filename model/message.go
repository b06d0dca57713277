package model

// Outbound response type constants.
const (
	ResponseTypeWorkflow         = "workflow"
	ResponseTypeWorkflowComplete = "workflow_complete"
	ResponseTypeRAG              = "rag"
)

// InboundMessage is the message shape consumed from the transport layer.
// The transport (WebSocket gateway) owns framing and authentication; this
// core only sees the decoded payload.
type InboundMessage struct {
	MessageID string    `json:"message_id,omitempty"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	HasImage  bool      `json:"has_image,omitempty"`
	ImageData string    `json:"image_data,omitempty"`
	Location  *Location `json:"location,omitempty"`
}

// Location is either a coordinate pair or a free-text address.
type Location struct {
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
	Address string  `json:"address,omitempty"`
}

// OutboundResponse is the payload produced toward the transport layer for
// delivery to the client connection.
type OutboundResponse struct {
	Type         string       `json:"type"`
	Response     string       `json:"response"`
	SessionID    string       `json:"session_id"`
	WorkflowType WorkflowType `json:"workflow_type,omitempty"`
	WorkflowID   string       `json:"workflow_id,omitempty"`
	Options      []string     `json:"options,omitempty"`
	TicketNumber string       `json:"ticket_number,omitempty"`
}

// CleanupReport is produced by the sweeper for operational consumption.
type CleanupReport struct {
	Status             string `json:"status"`
	SessionsCleaned    int    `json:"sessions_cleaned"`
	SessionsIdentified int    `json:"sessions_identified"`
	DryRun             bool   `json:"dry_run"`
	CutoffTimestamp    string `json:"cutoff_timestamp"`
}

// Cleanup report status values.
const (
	CleanupStatusSuccess = "success"
	CleanupStatusError   = "error"
)
