package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/repos"
	"github.com/harborlight/careledger-backend/internal/services"
)

type ActivityLogHandler struct {
	log                *logger.Logger
	activityLogService services.ActivityLogService
}

func NewActivityLogHandler(log *logger.Logger, activityLogService services.ActivityLogService) *ActivityLogHandler {
	return &ActivityLogHandler{
		log:                log.With("handler", "ActivityLogHandler"),
		activityLogService: activityLogService,
	}
}

func (h *ActivityLogHandler) List(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_client_id", err)
		return
	}

	filter := repos.ActivityLogFilter{Actor: c.Query("actor")}
	if raw := c.Query("date"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_date", err)
			return
		}
		filter.Date = &day
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	entries, total, err := h.activityLogService.List(c.Request.Context(), clientID, filter, page, pageSize)
	if err != nil {
		h.log.Error("List activity log failed", "error", err, "client_id", clientID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"entries": entries, "total": total})
}

// Delete is an administrative override; normal lifecycle flow never removes
// audit entries.
func (h *ActivityLogHandler) Delete(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_entry_id", err)
		return
	}

	if err := h.activityLogService.Delete(c.Request.Context(), entryID); err != nil {
		h.log.Error("Delete activity log entry failed", "error", err, "entry_id", entryID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}
