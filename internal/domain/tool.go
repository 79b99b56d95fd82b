package domain

// StatusTag classifies a tool outcome for the model.
type StatusTag string

const (
	StatusSuccess  StatusTag = "SUCCESS"
	StatusFailed   StatusTag = "FAILED"
	StatusConflict StatusTag = "CONFLICT"
	StatusNeutral  StatusTag = "NEUTRAL"
	StatusUnknown  StatusTag = "UNKNOWN"
)

// ToolResult is the canonical unit returned to the model and persisted.
type ToolResult struct {
	ToolCallID string    `json:"tool_call_id"`
	ToolName   string    `json:"tool_name"`
	Status     StatusTag `json:"status"`
	Text       string    `json:"text"`
}

// Message converts the result into the tool message spliced into history.
func (r ToolResult) Message() Message {
	return Message{
		Role:       RoleTool,
		Content:    r.Text,
		ToolCallID: r.ToolCallID,
		ToolName:   r.ToolName,
	}
}
