package models

// ModeLocalJSON marks answers produced from the local team dataset instead of
// the stateful assistant.
const ModeLocalJSON = "local-json"

type AskResponse struct {
	Answer   string `json:"answer"`
	ThreadID string `json:"thread_id"`
}

type TeamAnswerResponse struct {
	Answer string `json:"answer"`
	Mode   string `json:"mode"`
}
