package services

import "fmt"

// teamInstructions is the fixed instruction text for the local dataset mode.
const teamInstructions = `Você é um assistente que responde perguntas sobre a equipe Atlas.
Use exclusivamente os dados JSON fornecidos abaixo. Responda em português, de forma objetiva e profissional.
Se a informação pedida não estiver nos dados, diga claramente que não possui essa informação. Não invente nada.`

// BuildTeamPrompt renders the serialized dataset and the question into the
// single prompt sent to the completion endpoint.
func BuildTeamPrompt(datasetJSON, question string) string {
	return fmt.Sprintf("%s\n\nDados da equipe:\n%s\n\nPergunta: %s", teamInstructions, datasetJSON, question)
}
