package models

// Event names emitted on the /ask/stream SSE channel.
const (
	EventThreadID  = "thread_id"
	EventTextChunk = "text_chunk"
	EventToolCall  = "tool_call"
)

// StreamEvent is the envelope serialized into each SSE data line:
//
//	data: {"event": "text_chunk", "data": {"text_chunk": "..."}}
type StreamEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type ThreadIDPayload struct {
	ThreadID string `json:"thread_id"`
}

type TextChunkPayload struct {
	TextChunk string `json:"text_chunk"`
}

type ToolCallPayload struct {
	ToolCall ToolCallInfo `json:"tool_call"`
}

// ToolCallInfo describes a function the assistant asked this service to run.
// Arguments is the raw JSON string exactly as the upstream sent it.
type ToolCallInfo struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
