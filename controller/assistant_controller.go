package controller

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github/msilvano/assistant/models"
	"github/msilvano/assistant/services"
)

// AssistantController handles the HTTP requests for the /ask endpoints. It
// depends on the AssistantService to perform the upstream orchestration.
type AssistantController struct {
	assistantService services.AssistantService
}

// NewAssistantController is a constructor function that creates a new
// AssistantController. This is called from main.go to inject the service
// dependency.
func NewAssistantController(service services.AssistantService) *AssistantController {
	return &AssistantController{
		assistantService: service,
	}
}

// Ask is the Gin handler for the POST /ask endpoint (buffered variant).
func (c *AssistantController) Ask(ctx *gin.Context) {
	var req models.AskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	response, err := c.assistantService.Ask(ctx.Request.Context(), req)
	if err != nil {
		status, message := mapServiceError(err)
		ctx.JSON(status, gin.H{"error": message})
		return
	}

	ctx.JSON(http.StatusOK, response)
}

// AskStream is the Gin handler for the POST /ask/stream endpoint. Service
// events are relayed as SSE frames of the form
//
//	data: {"event": "...", "data": ...}
//
// Setup failures are plain JSON errors; once streaming starts, failures end
// the stream without a terminal event.
func (c *AssistantController) AskStream(ctx *gin.Context) {
	var req models.AskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	events, err := c.assistantService.AskStream(ctx.Request.Context(), req)
	if err != nil {
		status, message := mapServiceError(err)
		ctx.JSON(status, gin.H{"error": message})
		return
	}

	header := ctx.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	ctx.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("CONTROLLER: could not marshal stream event: %v", err)
			return false
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		return true
	})
}
