package services

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github/msilvano/assistant/models"
)

const (
	roleUser            = "user"
	defaultPollInterval = time.Second

	// toolSuccessOutput acknowledges a tool call so the run can resume; tools
	// are relayed to the caller, never executed here.
	toolSuccessOutput = `{"success": true}`
)

// citationMarkerRE matches the bracketed source annotations the upstream
// assistant inserts, e.g. 【4:0†fonte】.
var citationMarkerRE = regexp.MustCompile(`【[^】]*】`)

// CleanAnswer strips citation markers and trims surrounding whitespace
// (buffered path).
func CleanAnswer(text string) string {
	return strings.TrimSpace(citationMarkerRE.ReplaceAllString(text, ""))
}

// CleanChunk strips citation markers only. Streamed chunks keep their
// whitespace so word boundaries survive concatenation on the client.
func CleanChunk(text string) string {
	return citationMarkerRE.ReplaceAllString(text, "")
}

// AssistantAPI is the slice of the OpenAI client the assistant service
// depends on.
type AssistantAPI interface {
	CreateThread(ctx context.Context) (*models.Thread, error)
	CreateMessage(ctx context.Context, threadID, role, content string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (*models.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (*models.Run, error)
	LatestRunMessage(ctx context.Context, threadID, runID string) (*models.Message, error)
	CreateRunStream(ctx context.Context, threadID, assistantID string) (io.ReadCloser, error)
	SubmitToolOutputsStream(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (io.ReadCloser, error)
}

// AssistantService interface defines the conversation operations backed by
// the hosted assistant.
type AssistantService interface {
	Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error)
	AskStream(ctx context.Context, req models.AskRequest) (<-chan models.StreamEvent, error)
}

// assistantServiceImpl holds the dependencies it needs to do its job.
type assistantServiceImpl struct {
	api          AssistantAPI
	assistantID  string
	pollInterval time.Duration
}

// NewAssistantService creates a new assistant service instance.
func NewAssistantService(api AssistantAPI, assistantID string) AssistantService {
	return &assistantServiceImpl{
		api:          api,
		assistantID:  assistantID,
		pollInterval: defaultPollInterval,
	}
}

// Ask implements the buffered mode: create or reuse the thread, append the
// question, run to a terminal state and return the cleaned answer.
func (s *assistantServiceImpl) Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error) {
	threadID, err := s.resolveThread(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	log.Printf("SERVICE: Asking assistant (thread: '%s')", threadID)

	if err := s.api.CreateMessage(ctx, threadID, roleUser, req.Question); err != nil {
		return nil, newError(ErrorUpstreamTransport, "append message", err)
	}

	run, err := s.api.CreateRun(ctx, threadID, s.assistantID)
	if err != nil {
		return nil, newError(ErrorUpstreamTransport, "create run", err)
	}

	run, err = s.waitForRun(ctx, threadID, run.ID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusCompleted {
		return nil, newError(ErrorUpstreamStatus, run.Status, nil)
	}

	msg, err := s.api.LatestRunMessage(ctx, threadID, run.ID)
	if err != nil {
		return nil, newError(ErrorUpstreamTransport, "fetch answer", err)
	}

	return &models.AskResponse{
		Answer:   CleanAnswer(firstTextValue(msg.Content)),
		ThreadID: threadID,
	}, nil
}

// AskStream implements the streaming mode. Setup failures are returned as an
// error; once the channel is handed out, failures end it without a terminal
// event.
func (s *assistantServiceImpl) AskStream(ctx context.Context, req models.AskRequest) (<-chan models.StreamEvent, error) {
	threadID, err := s.resolveThread(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	if err := s.api.CreateMessage(ctx, threadID, roleUser, req.Question); err != nil {
		return nil, newError(ErrorUpstreamTransport, "append message", err)
	}

	stream, err := s.api.CreateRunStream(ctx, threadID, s.assistantID)
	if err != nil {
		return nil, newError(ErrorUpstreamTransport, "create run stream", err)
	}

	events := make(chan models.StreamEvent)
	go func() {
		defer close(events)
		// thread_id goes out first so the caller can persist it even if the
		// run fails later.
		first := models.StreamEvent{
			Event: models.EventThreadID,
			Data:  models.ThreadIDPayload{ThreadID: threadID},
		}
		if !send(ctx, events, first) {
			stream.Close()
			return
		}
		s.relayRunStream(ctx, threadID, stream, events)
	}()
	return events, nil
}

// resolveThread reuses the caller's thread id or requests a new one exactly
// once.
func (s *assistantServiceImpl) resolveThread(ctx context.Context, threadID *string) (string, error) {
	if threadID != nil && *threadID != "" {
		return *threadID, nil
	}
	thread, err := s.api.CreateThread(ctx)
	if err != nil {
		return "", newError(ErrorUpstreamTransport, "create thread", err)
	}
	return thread.ID, nil
}

// waitForRun polls until the run leaves its non-terminal states.
func (s *assistantServiceImpl) waitForRun(ctx context.Context, threadID, runID string) (*models.Run, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		run, err := s.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return nil, newError(ErrorUpstreamTransport, "poll run", err)
		}
		switch run.Status {
		case models.RunStatusQueued, models.RunStatusInProgress, models.RunStatusCancelling:
		default:
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, newError(ErrorUpstreamTransport, "request cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

// runStreamState tracks where the relay is in the run lifecycle.
type runStreamState int

const (
	stateRunning runStreamState = iota
	stateAwaitingToolOutput
	stateResumed
	stateClosed
)

// relayRunStream drives the run stream state machine: consume deltas until
// the stream ends or stops at requires_action, acknowledge tool calls, resume
// and keep relaying.
func (s *assistantServiceImpl) relayRunStream(ctx context.Context, threadID string, stream io.ReadCloser, events chan<- models.StreamEvent) {
	state := stateRunning
	var pending *models.Run

	for {
		switch state {
		case stateRunning, stateResumed:
			run, err := s.consumeStream(ctx, stream, events)
			stream.Close()
			if err != nil {
				// Known gap: the channel just ends, no terminal event.
				log.Printf("SERVICE: run stream ended early: %v", err)
				state = stateClosed
				continue
			}
			if run == nil {
				state = stateClosed
				continue
			}
			pending = run
			state = stateAwaitingToolOutput

		case stateAwaitingToolOutput:
			resumed, ok := s.handleRequiredAction(ctx, threadID, pending, events)
			if !ok {
				state = stateClosed
				continue
			}
			stream = resumed
			pending = nil
			state = stateResumed

		case stateClosed:
			return
		}
	}
}

// handleRequiredAction relays each requested tool call to the caller,
// acknowledges it upstream with a synthesized success and returns the resumed
// stream.
func (s *assistantServiceImpl) handleRequiredAction(ctx context.Context, threadID string, run *models.Run, events chan<- models.StreamEvent) (io.ReadCloser, bool) {
	calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	outputs := make([]models.ToolOutput, 0, len(calls))
	for _, call := range calls {
		log.Printf("SERVICE: Assistant requested tool '%s'", call.Function.Name)
		event := models.StreamEvent{
			Event: models.EventToolCall,
			Data: models.ToolCallPayload{ToolCall: models.ToolCallInfo{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			}},
		}
		if !send(ctx, events, event) {
			return nil, false
		}
		outputs = append(outputs, models.ToolOutput{ToolCallID: call.ID, Output: toolSuccessOutput})
	}

	resumed, err := s.api.SubmitToolOutputsStream(ctx, threadID, run.ID, outputs)
	if err != nil {
		log.Printf("SERVICE: could not resume run %s after tool outputs: %v", run.ID, err)
		return nil, false
	}
	return resumed, true
}

// consumeStream reads upstream SSE frames, forwarding cleaned text deltas and
// suppressing chunks that are empty after cleaning. It returns a non-nil run
// when the stream stops at requires_action and (nil, nil) when the upstream
// sequence ends.
func (s *assistantServiceImpl) consumeStream(ctx context.Context, stream io.Reader, events chan<- models.StreamEvent) (*models.Run, error) {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return nil, nil
			}

			switch eventName {
			case "thread.message.delta":
				var delta models.MessageDelta
				if err := json.Unmarshal([]byte(payload), &delta); err != nil {
					log.Printf("SERVICE: skipping malformed stream delta: %v", err)
					continue
				}
				for _, part := range delta.Delta.Content {
					if part.Text == nil {
						continue
					}
					chunk := CleanChunk(part.Text.Value)
					if chunk == "" {
						continue
					}
					event := models.StreamEvent{
						Event: models.EventTextChunk,
						Data:  models.TextChunkPayload{TextChunk: chunk},
					}
					if !send(ctx, events, event) {
						return nil, ctx.Err()
					}
				}

			case "thread.run.requires_action":
				var run models.Run
				if err := json.Unmarshal([]byte(payload), &run); err != nil {
					log.Printf("SERVICE: skipping malformed requires_action payload: %v", err)
					continue
				}
				if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
					return &run, nil
				}
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return nil, err
	}
	return nil, nil
}

// send delivers an event unless the caller has gone away.
func send(ctx context.Context, events chan<- models.StreamEvent, event models.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func firstTextValue(content []models.MessageContent) string {
	for _, part := range content {
		if part.Text != nil {
			return part.Text.Value
		}
	}
	return ""
}
