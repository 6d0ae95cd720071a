package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/tmc/langchaingo/llms"

	"github/msilvano/assistant/models"
)

// teamTemperature keeps the local mode factual rather than creative.
const teamTemperature = 0.2

// TeamService answers questions about the local team dataset with a single
// stateless completion call per request.
type TeamService interface {
	Consulta(ctx context.Context, req models.TeamQueryRequest) (*models.TeamAnswerResponse, error)
}

type teamServiceImpl struct {
	llm     llms.Model
	dataset json.RawMessage // nil when the dataset failed to load at startup
}

// NewTeamService creates a new team service instance. A nil dataset is
// accepted; requests then fail with a configuration error instead of the
// process refusing to start.
func NewTeamService(llm llms.Model, dataset json.RawMessage) TeamService {
	return &teamServiceImpl{llm: llm, dataset: dataset}
}

// LoadTeamDataset reads the team JSON file and re-serializes it indented for
// prompt embedding.
func LoadTeamDataset(path string) (json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read team dataset %s: %w", path, err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("could not parse team dataset %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("team dataset %s is empty", path)
	}

	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("could not serialize team dataset: %w", err)
	}
	return pretty, nil
}

// Consulta implements TeamService.
func (t *teamServiceImpl) Consulta(ctx context.Context, req models.TeamQueryRequest) (*models.TeamAnswerResponse, error) {
	if len(t.dataset) == 0 {
		return nil, newError(ErrorConfiguration, "team dataset not loaded", nil)
	}

	log.Printf("SERVICE: Answering team query: '%s'", req.Pergunta)

	prompt := BuildTeamPrompt(string(t.dataset), req.Pergunta)
	answer, err := llms.GenerateFromSinglePrompt(ctx, t.llm, prompt, llms.WithTemperature(teamTemperature))
	if err != nil {
		return nil, newError(ErrorUpstreamTransport, "completion call", err)
	}

	return &models.TeamAnswerResponse{Answer: answer, Mode: models.ModeLocalJSON}, nil
}
