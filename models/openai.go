package models

// Wire types for the OpenAI assistants API (v2). Only the fields this service
// reads or sends are declared.

// Run lifecycle states. queued, in_progress and cancelling are the
// non-terminal ones.
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusCancelling     = "cancelling"
	RunStatusRequiresAction = "requires_action"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusCancelled      = "cancelled"
	RunStatusExpired        = "expired"
	RunStatusIncomplete     = "incomplete"
)

type Thread struct {
	ID string `json:"id"`
}

type CreateMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Message struct {
	ID      string           `json:"id"`
	Role    string           `json:"role"`
	Content []MessageContent `json:"content"`
}

type MessageContent struct {
	Type string       `json:"type"`
	Text *MessageText `json:"text,omitempty"`
}

type MessageText struct {
	Value string `json:"value"`
}

type MessageList struct {
	Data []Message `json:"data"`
}

type CreateRunRequest struct {
	AssistantID string `json:"assistant_id"`
	Stream      bool   `json:"stream,omitempty"`
}

type Run struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"thread_id"`
	Status         string          `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
}

type RequiredAction struct {
	Type              string             `json:"type"`
	SubmitToolOutputs *SubmitToolOutputs `json:"submit_tool_outputs,omitempty"`
}

type SubmitToolOutputs struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

type SubmitToolOutputsRequest struct {
	ToolOutputs []ToolOutput `json:"tool_outputs"`
	Stream      bool         `json:"stream,omitempty"`
}

// MessageDelta is the payload of a thread.message.delta stream event.
type MessageDelta struct {
	ID    string `json:"id"`
	Delta struct {
		Content []MessageContent `json:"content"`
	} `json:"delta"`
}
