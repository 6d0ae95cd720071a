package models

// AskRequest is the body of POST /ask and POST /ask/stream. ThreadID is nil
// on the first turn of a conversation; the response carries the id to use on
// follow-up questions.
type AskRequest struct {
	Question string  `json:"question" binding:"required"`
	ThreadID *string `json:"thread_id"`
}

// TeamQueryRequest is the body of POST /consulta-atlas.
type TeamQueryRequest struct {
	Pergunta string `json:"pergunta" binding:"required"`
}
