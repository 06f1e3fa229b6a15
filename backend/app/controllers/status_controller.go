package controllers

import (
	"net/http"

	"github.com/GluM1262/remoteshell-manager/backend/app/dto"
	"github.com/GluM1262/remoteshell-manager/backend/app/queue"
	"github.com/GluM1262/remoteshell-manager/backend/app/socket"
)

const Version = "1.0.0"

type StatusController struct {
	Hub    *socket.Hub
	Engine *queue.Engine
}

func NewStatusController(h *socket.Hub, e *queue.Engine) *StatusController {
	return &StatusController{Hub: h, Engine: e}
}

func (c *StatusController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.HealthResponse{
		Status:          "healthy",
		ConnectedAgents: c.Hub.Count(),
		LateResultDrops: c.Engine.LateResultDrops(),
		Version:         Version,
	})
}
