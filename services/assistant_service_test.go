package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github/msilvano/assistant/models"
)

// fakeAssistantAPI is a hand-rolled AssistantAPI stub recording every call.
type fakeAssistantAPI struct {
	createThreadCalls int
	threadID          string
	createThreadErr   error

	messages []fakeMessage

	runStatuses []string // successive RetrieveRun statuses; last one repeats
	pollCalls   int
	createRunErr error

	latestMessage    *models.Message
	latestMessageErr error

	streamBodies    []string // successive SSE bodies: CreateRunStream, then each resume
	streamIdx       int
	createStreamErr error
	submitted       [][]models.ToolOutput
	submitErr       error
}

type fakeMessage struct {
	threadID, role, content string
}

func (f *fakeAssistantAPI) CreateThread(context.Context) (*models.Thread, error) {
	f.createThreadCalls++
	if f.createThreadErr != nil {
		return nil, f.createThreadErr
	}
	return &models.Thread{ID: f.threadID}, nil
}

func (f *fakeAssistantAPI) CreateMessage(_ context.Context, threadID, role, content string) error {
	f.messages = append(f.messages, fakeMessage{threadID: threadID, role: role, content: content})
	return nil
}

func (f *fakeAssistantAPI) CreateRun(_ context.Context, threadID, _ string) (*models.Run, error) {
	if f.createRunErr != nil {
		return nil, f.createRunErr
	}
	return &models.Run{ID: "run_1", ThreadID: threadID, Status: models.RunStatusQueued}, nil
}

func (f *fakeAssistantAPI) RetrieveRun(_ context.Context, threadID, runID string) (*models.Run, error) {
	idx := f.pollCalls
	if idx >= len(f.runStatuses) {
		idx = len(f.runStatuses) - 1
	}
	f.pollCalls++
	return &models.Run{ID: runID, ThreadID: threadID, Status: f.runStatuses[idx]}, nil
}

func (f *fakeAssistantAPI) LatestRunMessage(context.Context, string, string) (*models.Message, error) {
	return f.latestMessage, f.latestMessageErr
}

func (f *fakeAssistantAPI) CreateRunStream(context.Context, string, string) (io.ReadCloser, error) {
	if f.createStreamErr != nil {
		return nil, f.createStreamErr
	}
	return f.nextStream(), nil
}

func (f *fakeAssistantAPI) SubmitToolOutputsStream(_ context.Context, _, _ string, outputs []models.ToolOutput) (io.ReadCloser, error) {
	f.submitted = append(f.submitted, outputs)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.nextStream(), nil
}

func (f *fakeAssistantAPI) nextStream() io.ReadCloser {
	body := f.streamBodies[f.streamIdx]
	f.streamIdx++
	return io.NopCloser(strings.NewReader(body))
}

func newTestService(api *fakeAssistantAPI) *assistantServiceImpl {
	return &assistantServiceImpl{
		api:          api,
		assistantID:  "asst_test",
		pollInterval: time.Millisecond,
	}
}

func textMessage(value string) *models.Message {
	return &models.Message{
		ID:   "msg_1",
		Role: "assistant",
		Content: []models.MessageContent{
			{Type: "text", Text: &models.MessageText{Value: value}},
		},
	}
}

// ---------------------------------------------------------------------------
// Cleaning
// ---------------------------------------------------------------------------

func TestCleanAnswer(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Tenho experiência com IA【4:0†fonte】.", "Tenho experiência com IA."},
		{"  sem marcadores  ", "sem marcadores"},
		{"【a】meio【b】fim【c】", "meiofim"},
		{"【só marcador】", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CleanAnswer(tc.in), "in=%q", tc.in)
	}
}

func TestCleanChunkKeepsWhitespace(t *testing.T) {
	// The streaming path must not trim; chunk boundaries carry meaning.
	require.Equal(t, " palavra ", CleanChunk(" palavra【1:2†doc】 "))
	require.Equal(t, "", CleanChunk("【1:2†doc】"))
}

// ---------------------------------------------------------------------------
// Buffered mode
// ---------------------------------------------------------------------------

func TestAskCreatesThreadExactlyOnceWhenMissing(t *testing.T) {
	api := &fakeAssistantAPI{
		threadID:      "th_new",
		runStatuses:   []string{models.RunStatusCompleted},
		latestMessage: textMessage("Olá!"),
	}
	svc := newTestService(api)

	resp, err := svc.Ask(context.Background(), models.AskRequest{Question: "Qual sua experiência com IA?"})
	require.NoError(t, err)
	require.Equal(t, 1, api.createThreadCalls)
	require.Equal(t, "th_new", resp.ThreadID)
	require.Equal(t, "Olá!", resp.Answer)

	require.Len(t, api.messages, 1)
	require.Equal(t, "th_new", api.messages[0].threadID)
	require.Equal(t, "user", api.messages[0].role)
	require.Equal(t, "Qual sua experiência com IA?", api.messages[0].content)
}

func TestAskReusesProvidedThread(t *testing.T) {
	api := &fakeAssistantAPI{
		runStatuses:   []string{models.RunStatusCompleted},
		latestMessage: textMessage("Continuando."),
	}
	svc := newTestService(api)

	threadID := "th_existing"
	resp, err := svc.Ask(context.Background(), models.AskRequest{Question: "E depois?", ThreadID: &threadID})
	require.NoError(t, err)
	require.Zero(t, api.createThreadCalls, "no new-conversation call may be made")
	require.Equal(t, "th_existing", resp.ThreadID)
}

func TestAskPollsUntilTerminalAndCleans(t *testing.T) {
	api := &fakeAssistantAPI{
		threadID:      "th_1",
		runStatuses:   []string{models.RunStatusQueued, models.RunStatusInProgress, models.RunStatusCompleted},
		latestMessage: textMessage("  Trabalhei com IA【4:0†cv.pdf】 por 5 anos.  "),
	}
	svc := newTestService(api)

	resp, err := svc.Ask(context.Background(), models.AskRequest{Question: "IA?"})
	require.NoError(t, err)
	require.Equal(t, 3, api.pollCalls)
	require.Equal(t, "Trabalhei com IA por 5 anos.", resp.Answer)
}

func TestAskNonCompletedRunIsStatusError(t *testing.T) {
	api := &fakeAssistantAPI{
		threadID:    "th_1",
		runStatuses: []string{models.RunStatusFailed},
	}
	svc := newTestService(api)

	_, err := svc.Ask(context.Background(), models.AskRequest{Question: "IA?"})
	require.Error(t, err)

	svcErr, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorUpstreamStatus, svcErr.Code)
	require.Equal(t, models.RunStatusFailed, svcErr.Reason)
}

func TestAskTransportErrorIsWrapped(t *testing.T) {
	api := &fakeAssistantAPI{
		threadID:     "th_1",
		createRunErr: errors.New("connection reset"),
	}
	svc := newTestService(api)

	_, err := svc.Ask(context.Background(), models.AskRequest{Question: "IA?"})
	svcErr, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorUpstreamTransport, svcErr.Code)
	require.ErrorContains(t, err, "connection reset")
}

// ---------------------------------------------------------------------------
// Streaming mode
// ---------------------------------------------------------------------------

const plainStreamBody = `event: thread.run.created
data: {"id":"run_1","status":"queued"}

event: thread.message.delta
data: {"id":"msg_1","delta":{"content":[{"type":"text","text":{"value":"Olá, "}}]}}

event: thread.message.delta
data: {"id":"msg_1","delta":{"content":[{"type":"text","text":{"value":"【4:0†fonte】"}}]}}

event: thread.message.delta
data: {"id":"msg_1","delta":{"content":[{"type":"text","text":{"value":"tudo bem?"}}]}}

event: thread.run.completed
data: {"id":"run_1","status":"completed"}

event: done
data: [DONE]
`

func collectEvents(t *testing.T, events <-chan models.StreamEvent) []models.StreamEvent {
	t.Helper()
	var got []models.StreamEvent
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, event)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for stream events")
		}
	}
}

func TestAskStreamEmitsThreadIDFirst(t *testing.T) {
	api := &fakeAssistantAPI{
		threadID:     "th_stream",
		streamBodies: []string{plainStreamBody},
	}
	svc := newTestService(api)

	events, err := svc.AskStream(context.Background(), models.AskRequest{Question: "Oi"})
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.NotEmpty(t, got)
	require.Equal(t, models.EventThreadID, got[0].Event)
	require.Equal(t, models.ThreadIDPayload{ThreadID: "th_stream"}, got[0].Data)
}

func TestAskStreamSuppressesEmptyChunks(t *testing.T) {
	api := &fakeAssistantAPI{
		threadID:     "th_stream",
		streamBodies: []string{plainStreamBody},
	}
	svc := newTestService(api)

	events, err := svc.AskStream(context.Background(), models.AskRequest{Question: "Oi"})
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 3) // thread_id + two non-empty chunks
	require.Equal(t, models.TextChunkPayload{TextChunk: "Olá, "}, got[1].Data)
	require.Equal(t, models.TextChunkPayload{TextChunk: "tudo bem?"}, got[2].Data)
	for _, event := range got[1:] {
		payload, ok := event.Data.(models.TextChunkPayload)
		require.True(t, ok)
		require.NotEmpty(t, payload.TextChunk)
	}
}

const requiresActionStreamBody = `event: thread.message.delta
data: {"id":"msg_1","delta":{"content":[{"type":"text","text":{"value":"Deixa eu registrar."}}]}}

event: thread.run.requires_action
data: {"id":"run_1","thread_id":"th_tools","status":"requires_action","required_action":{"type":"submit_tool_outputs","submit_tool_outputs":{"tool_calls":[{"id":"call_1","type":"function","function":{"name":"registrar_contato","arguments":"{\"email\":\"a@b.com\"}"}}]}}}
`

const resumedStreamBody = `event: thread.message.delta
data: {"id":"msg_2","delta":{"content":[{"type":"text","text":{"value":"Contato registrado!"}}]}}

event: done
data: [DONE]
`

func TestAskStreamRelaysToolCallAndResumes(t *testing.T) {
	api := &fakeAssistantAPI{
		threadID:     "th_tools",
		streamBodies: []string{requiresActionStreamBody, resumedStreamBody},
	}
	svc := newTestService(api)

	events, err := svc.AskStream(context.Background(), models.AskRequest{Question: "Registra meu contato"})
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 4)
	require.Equal(t, models.EventThreadID, got[0].Event)
	require.Equal(t, models.EventTextChunk, got[1].Event)
	require.Equal(t, models.EventToolCall, got[2].Event)
	require.Equal(t, models.ToolCallPayload{ToolCall: models.ToolCallInfo{
		Name:      "registrar_contato",
		Arguments: `{"email":"a@b.com"}`,
	}}, got[2].Data)
	require.Equal(t, models.TextChunkPayload{TextChunk: "Contato registrado!"}, got[3].Data)

	// The run must have been resumed with a synthesized success ack.
	require.Len(t, api.submitted, 1)
	require.Equal(t, []models.ToolOutput{{ToolCallID: "call_1", Output: `{"success": true}`}}, api.submitted[0])
}

func TestAskStreamSetupFailureReturnsError(t *testing.T) {
	api := &fakeAssistantAPI{
		threadID:        "th_1",
		createStreamErr: errors.New("dial tcp: refused"),
	}
	svc := newTestService(api)

	_, err := svc.AskStream(context.Background(), models.AskRequest{Question: "Oi"})
	svcErr, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorUpstreamTransport, svcErr.Code)
}

func TestAskStreamStopsOnCallerDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	api := &fakeAssistantAPI{
		threadID:     "th_1",
		streamBodies: []string{plainStreamBody},
	}
	svc := newTestService(api)

	events, err := svc.AskStream(ctx, models.AskRequest{Question: "Oi"})
	require.NoError(t, err)

	// Consume the first event, then walk away.
	<-events
	cancel()

	select {
	case <-time.After(5 * time.Second):
		t.Fatal("channel was not closed after cancellation")
	case _, ok := <-events:
		for ok {
			_, ok = <-events
		}
	}
}
