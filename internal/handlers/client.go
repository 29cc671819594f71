package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/services"
)

type ClientHandler struct {
	log           *logger.Logger
	clientService services.ClientService
}

func NewClientHandler(log *logger.Logger, clientService services.ClientService) *ClientHandler {
	return &ClientHandler{
		log:           log.With("handler", "ClientHandler"),
		clientService: clientService,
	}
}

func (h *ClientHandler) Create(c *gin.Context) {
	var body struct {
		FirstName   string          `json:"first_name" binding:"required"`
		LastName    string          `json:"last_name" binding:"required"`
		DateOfBirth *time.Time      `json:"date_of_birth"`
		Profile     json.RawMessage `json:"profile"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	client, err := h.clientService.Create(c.Request.Context(), services.ClientInput{
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		DateOfBirth: body.DateOfBirth,
		Profile:     body.Profile,
	}, requestActor(c))
	if err != nil {
		h.log.Error("Create client failed", "error", err)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"client": client})
}

func (h *ClientHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_client_id", err)
		return
	}

	client, err := h.clientService.Get(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Get client failed", "error", err, "client_id", id)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"client": client})
}

func (h *ClientHandler) List(c *gin.Context) {
	clients, err := h.clientService.List(c.Request.Context())
	if err != nil {
		h.log.Error("List clients failed", "error", err)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"clients": clients})
}

func (h *ClientHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_client_id", err)
		return
	}

	if err := h.clientService.Delete(c.Request.Context(), id, requestActor(c)); err != nil {
		h.log.Error("Delete client failed", "error", err, "client_id", id)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

func (h *ClientHandler) UpdateProfile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_client_id", err)
		return
	}
	var patch json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	result, err := h.clientService.UpdateProfile(c.Request.Context(), id, patch, requestActor(c))
	if err != nil {
		h.log.Error("Update client profile failed", "error", err, "client_id", id)
		RespondServiceError(c, err)
		return
	}
	body := gin.H{"client": result.Client}
	if result.AuditWarning != nil {
		body["warning"] = result.AuditWarning.Error()
	}
	RespondOK(c, body)
}
