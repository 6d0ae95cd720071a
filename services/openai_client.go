package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github/msilvano/assistant/models"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	betaHeaderValue = "assistants=v2"
)

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// OpenAIClient is a focused HTTP client for the assistants API surface this
// service uses: threads, messages, runs and their streaming variants.
type OpenAIClient struct {
	httpClient *http.Client
	// streamClient has no timeout: a run stream can legitimately outlast any
	// fixed limit, so its lifecycle is controlled by the request context.
	streamClient *http.Client
	baseURL      string
	apiKey       string
}

// NewOpenAIClient creates a client. An empty baseURL selects the public API.
func NewOpenAIClient(httpClient *http.Client, baseURL, apiKey string) *OpenAIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAIClient{
		httpClient:   httpClient,
		streamClient: &http.Client{Transport: httpClient.Transport},
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
	}
}

func (c *OpenAIClient) CreateThread(ctx context.Context) (*models.Thread, error) {
	var thread models.Thread
	if err := c.doJSON(ctx, http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

func (c *OpenAIClient) CreateMessage(ctx context.Context, threadID, role, content string) error {
	body := models.CreateMessageRequest{Role: role, Content: content}
	return c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, nil)
}

func (c *OpenAIClient) CreateRun(ctx context.Context, threadID, assistantID string) (*models.Run, error) {
	var run models.Run
	body := models.CreateRunRequest{AssistantID: assistantID}
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *OpenAIClient) RetrieveRun(ctx context.Context, threadID, runID string) (*models.Run, error) {
	var run models.Run
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestRunMessage fetches the newest message produced by the given run.
func (c *OpenAIClient) LatestRunMessage(ctx context.Context, threadID, runID string) (*models.Message, error) {
	path := "/threads/" + threadID + "/messages?limit=1&order=desc&run_id=" + url.QueryEscape(runID)
	var list models.MessageList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, fmt.Errorf("openai: run %s produced no messages", runID)
	}
	return &list.Data[0], nil
}

// CreateRunStream starts a streaming run and returns the raw SSE body.
func (c *OpenAIClient) CreateRunStream(ctx context.Context, threadID, assistantID string) (io.ReadCloser, error) {
	body := models.CreateRunRequest{AssistantID: assistantID, Stream: true}
	return c.doStream(ctx, "/threads/"+threadID+"/runs", body)
}

// SubmitToolOutputsStream resumes a run blocked on requires_action and returns
// the SSE body of the resumed stream.
func (c *OpenAIClient) SubmitToolOutputsStream(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (io.ReadCloser, error) {
	body := models.SubmitToolOutputsRequest{ToolOutputs: outputs, Stream: true}
	return c.doStream(ctx, "/threads/"+threadID+"/runs/"+runID+"/submit_tool_outputs", body)
}

func (c *OpenAIClient) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("openai: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", betaHeaderValue)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *OpenAIClient) doJSON(ctx context.Context, method, path string, payload, out any) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPStatusError{StatusCode: resp.StatusCode, URL: req.URL.String(), Body: string(buf)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}

// doStream issues a streaming request and hands the raw SSE body to the
// caller, who owns closing it.
func (c *OpenAIClient) doStream(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: stream request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: req.URL.String(), Body: string(buf)}
	}
	return resp.Body, nil
}
