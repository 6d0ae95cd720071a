package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github/msilvano/assistant/models"
	"github/msilvano/assistant/services"
)

// TeamController handles the HTTP requests for the local dataset mode.
type TeamController struct {
	teamService services.TeamService
}

func NewTeamController(service services.TeamService) *TeamController {
	return &TeamController{
		teamService: service,
	}
}

// ConsultaAtlas is the Gin handler for the POST /consulta-atlas endpoint.
func (c *TeamController) ConsultaAtlas(ctx *gin.Context) {
	var req models.TeamQueryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	response, err := c.teamService.Consulta(ctx.Request.Context(), req)
	if err != nil {
		status, message := mapServiceError(err)
		ctx.JSON(status, gin.H{"error": message})
		return
	}

	ctx.JSON(http.StatusOK, response)
}
